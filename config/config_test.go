package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigIsSet(t *testing.T) {
	c := NewConfig(nil)
	c.Set(":9090", "daemon.listen.addr.alt.0")
	assert.True(t, c.IsSet("daemon.listen"), "daemon.listen")
	assert.True(t, c.IsSet("daemon.listen.addr.alt.0"), "daemon.listen.addr.alt.0")
	assert.False(t, c.IsSet("daemon.listen.addr.alt.9"), "daemon.listen.addr.alt.9")
}

func TestConfigSetGet(t *testing.T) {
	c := NewConfig(nil)

	c.Set(":8080", "addr")
	assert.Equal(
		t,
		":8080",
		c.Get("addr").String(":8080"),
		"addr",
	)

	c.Set(40.0, "workspace.tags.#")
	assert.Equal(
		t,
		40.0,
		c.Get("workspace.tags.0").Float64(0),
		"workspace.tags.0",
	)

	c.Set(1, "workspace.tags.#.priority")
	assert.Equal(
		t,
		int64(1),
		c.Get("workspace.tags.1.priority").Int64(2),
		"workspace.tags.1.priority",
	)

	c.Set(true, "workspace.tags.#.0")
	assert.Equal(
		t,
		true,
		c.Get("workspace.tags.2.0").Bool(false),
		"workspace.tags.2.0",
	)

	c.Set(5, "workspace.tags.5.grow")
	assert.Equal(
		t,
		int64(5),
		c.Get("workspace.tags.5.grow").Int64(2),
		"workspace.tags.5.grow",
	)

	c.Set(true, "nodes.counter.paused")
	assert.Equal(
		t,
		true,
		c.Get("nodes.counter.paused").Bool(false),
		"nodes.counter.paused",
	)

	c.Set(20, "nodes.counter.index")
	assert.Equal(
		t,
		uint64(20),
		c.Get("nodes.counter.index").Uint64(5),
		"nodes.counter.index",
	)

	assert.NotNil(
		t,
		c.Get("workspace.tags").Array(),
		"workspace.tags",
	)

	assert.NotNil(
		t,
		c.Get("nodes.counter").Map(),
		"nodes.counter",
	)

	c.Set("50ms", "workspace.reload_debounce")
	assert.Equal(
		t,
		50*time.Millisecond,
		c.Get("workspace.reload_debounce").Duration(time.Microsecond),
		"workspace.reload_debounce",
	)

	dt, _ := time.Parse(time.RFC3339, "2019-02-24T15:04:05Z")
	c.Set("2019-02-24T15:04:05Z", "workspace.created_at")
	assert.Equal(
		t,
		dt,
		c.Get("workspace.created_at").Time(time.Now()),
		"workspace.created_at",
	)
}

func TestConfigGetDefaults(t *testing.T) {
	c := NewConfig(nil)

	assert.Equal(
		t,
		"./minicortex.db",
		c.Get("db").String("./minicortex.db"),
		"db",
	)

	assert.Equal(
		t,
		true,
		c.Get("workspace.autosave").Bool(true),
		"workspace.autosave",
	)

	assert.Equal(
		t,
		int64(8),
		c.Get("broadcast.shards").Int64(8),
		"broadcast.shards",
	)

	assert.Equal(
		t,
		float64(40),
		c.Get("hz").Float64(40),
		"hz",
	)

	assert.Equal(
		t,
		uint64(16),
		c.Get("broadcast.subscriber_buffer").Uint64(16),
		"broadcast.subscriber_buffer",
	)

	assert.Equal(
		t,
		time.Microsecond,
		c.Get("workspace.reload_debounce").Duration(time.Microsecond),
		"workspace.reload_debounce",
	)

	dt, _ := time.Parse(time.RFC3339Nano, time.RFC3339Nano)
	assert.Equal(
		t,
		dt,
		c.Get("workspace.created_at").Time(dt),
		"workspace.created_at",
	)
}
