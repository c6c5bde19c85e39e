package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/minicortex/minicortex"
	"github.com/minicortex/minicortex/errs"
)

// API binds a Registry, Supervisor and WorkspaceStore to the control-
// plane operation table of spec ch.6 and registers their handlers on a
// Server. Every topology-mutating handler triggers a probing tick when
// the network is stopped, so display outputs stay current even while
// idle (spec ch.4.4).
type API struct {
	Registry   *minicortex.Registry
	Supervisor *minicortex.Supervisor
	Workspaces *minicortex.WorkspaceStore

	// Candidates returns the current discovery-directory stand-in class
	// list (e.g. nodes.Classes) for the "rediscover" operation. May be
	// nil, in which case rediscover always reports no new entries.
	Candidates func() []minicortex.Class
}

// Register installs every handler on srv.
func (a *API) Register(srv *Server) {
	srv.Handle(http.MethodGet, "/palette", a.getPalette)
	srv.Handle(http.MethodGet, "/snapshot", a.getSnapshot)
	srv.Handle(http.MethodPost, "/rediscover", a.rediscover)

	srv.Handle(http.MethodGet, "/instances", a.listInstances)
	srv.Handle(http.MethodPost, "/instances", a.createInstance)
	srv.Handle(http.MethodDelete, "/instances/:id", a.deleteInstance)
	srv.Handle(http.MethodGet, "/instances/:id/schema", a.getInstanceSchema)
	srv.Handle(http.MethodPut, "/instances/:id/position", a.setPosition)
	srv.Handle(http.MethodPut, "/instances/:id/properties/:key", a.setProperty)
	srv.Handle(http.MethodPut, "/instances/:id/displays/:key/enabled", a.toggleDisplay)
	srv.Handle(http.MethodPost, "/instances/:id/actions/:key", a.invokeAction)
	srv.Handle(http.MethodPost, "/instances/:id/reload", a.hotReload)

	srv.Handle(http.MethodPost, "/connections", a.createConnection)
	srv.Handle(http.MethodDelete, "/connections", a.deleteConnection)

	srv.Handle(http.MethodPost, "/network/start", a.start)
	srv.Handle(http.MethodPost, "/network/stop", a.stop)
	srv.Handle(http.MethodPost, "/network/step", a.step)
	srv.Handle(http.MethodPut, "/network/speed", a.setSpeed)
	srv.Handle(http.MethodGet, "/network/state", a.getState)

	srv.Handle(http.MethodGet, "/workspaces", a.listWorkspaces)
	srv.Handle(http.MethodPost, "/workspaces/:name", a.saveWorkspace)
	srv.Handle(http.MethodPost, "/workspaces/:name/load", a.loadWorkspace)
	srv.Handle(http.MethodDelete, "/workspaces/:name", a.deleteWorkspace)
	srv.Handle(http.MethodPost, "/workspaces/clear", a.clearWorkspace)
	srv.Handle(http.MethodGet, "/workspaces/current", a.currentWorkspace)
}

func (a *API) probeIfStopped() {
	if a.Supervisor != nil {
		a.Supervisor.Probe()
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := errs.Code("unknown")
	if e, ok := err.(*errs.Error); ok {
		code = e.Code
		switch code {
		case errs.NotFound:
			status = http.StatusNotFound
		case errs.TypeMismatch, errs.PortBusy, errs.Validation, errs.Cycle:
			status = http.StatusUnprocessableEntity
		case errs.LoadFailed, errs.ReloadFailed, errs.NodeRuntime:
			status = http.StatusConflict
		}
	}
	writeJSON(w, status, map[string]interface{}{"code": code, "message": err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errs.New(errs.Validation, "missing request body")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Wrap(errs.Validation, err, "malformed request body")
	}
	return nil
}

func (a *API) getPalette(w http.ResponseWriter, r *http.Request, _ Params) {
	writeJSON(w, http.StatusOK, a.Registry.Palette())
}

func (a *API) getSnapshot(w http.ResponseWriter, r *http.Request, _ Params) {
	writeJSON(w, http.StatusOK, a.Registry.Snapshot())
}

func (a *API) rediscover(w http.ResponseWriter, r *http.Request, _ Params) {
	var candidates []minicortex.Class
	if a.Candidates != nil {
		candidates = a.Candidates()
	}
	added, err := a.Registry.Rediscover(candidates)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, added)
}

func (a *API) listInstances(w http.ResponseWriter, r *http.Request, _ Params) {
	writeJSON(w, http.StatusOK, a.Registry.ListInstances())
}

func (a *API) getInstanceSchema(w http.ResponseWriter, r *http.Request, ps Params) {
	view, err := a.Registry.InstanceSchema(ps.ByName("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type createInstanceRequest struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func (a *API) createInstance(w http.ResponseWriter, r *http.Request, _ Params) {
	var req createInstanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	inst, err := a.Registry.CreateInstance(req.Type, minicortex.Position{X: req.X, Y: req.Y})
	if err != nil {
		writeError(w, err)
		return
	}
	a.probeIfStopped()
	writeJSON(w, http.StatusCreated, inst)
}

func (a *API) deleteInstance(w http.ResponseWriter, r *http.Request, ps Params) {
	if err := a.Registry.DeleteInstance(ps.ByName("id")); err != nil {
		writeError(w, err)
		return
	}
	a.probeIfStopped()
	writeJSON(w, http.StatusOK, a.Registry.Snapshot())
}

type positionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (a *API) setPosition(w http.ResponseWriter, r *http.Request, ps Params) {
	var req positionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := a.Registry.SetPosition(ps.ByName("id"), req.X, req.Y); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type propertyRequest struct {
	Value interface{} `json:"value"`
}

func (a *API) setProperty(w http.ResponseWriter, r *http.Request, ps Params) {
	var req propertyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := a.Registry.SetProperty(ps.ByName("id"), ps.ByName("key"), req.Value); err != nil {
		writeError(w, err)
		return
	}
	a.probeIfStopped()
	writeJSON(w, http.StatusOK, a.Registry.Snapshot())
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *API) toggleDisplay(w http.ResponseWriter, r *http.Request, ps Params) {
	var req enabledRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := a.Registry.ToggleDisplayEnabled(ps.ByName("id"), ps.ByName("key"), req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (a *API) invokeAction(w http.ResponseWriter, r *http.Request, ps Params) {
	var params map[string]interface{}
	_ = decodeBody(r, &params)
	result, err := a.Registry.InvokeAction(ps.ByName("id"), ps.ByName("key"), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

func (a *API) hotReload(w http.ResponseWriter, r *http.Request, ps Params) {
	if err := a.Registry.HotReload(ps.ByName("id")); err != nil {
		writeError(w, err)
		return
	}
	a.probeIfStopped()
	writeJSON(w, http.StatusOK, a.Registry.Snapshot())
}

type connectionRequest struct {
	SrcID         string `json:"src_id"`
	SrcKey        string `json:"src_key"`
	DstID         string `json:"dst_id"`
	DstKey        string `json:"dst_key"`
	StrictAcyclic bool   `json:"strict_acyclic"`
}

func (a *API) createConnection(w http.ResponseWriter, r *http.Request, _ Params) {
	var req connectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := a.Registry.Connect(req.SrcID, req.SrcKey, req.DstID, req.DstKey, req.StrictAcyclic); err != nil {
		writeError(w, err)
		return
	}
	a.probeIfStopped()
	writeJSON(w, http.StatusCreated, a.Registry.Snapshot())
}

func (a *API) deleteConnection(w http.ResponseWriter, r *http.Request, _ Params) {
	var req connectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := a.Registry.Disconnect(req.SrcID, req.SrcKey, req.DstID, req.DstKey); err != nil {
		writeError(w, err)
		return
	}
	a.probeIfStopped()
	writeJSON(w, http.StatusOK, a.Registry.Snapshot())
}

func (a *API) start(w http.ResponseWriter, r *http.Request, _ Params) {
	a.Supervisor.Start()
	writeJSON(w, http.StatusOK, a.Supervisor.State())
}

func (a *API) stop(w http.ResponseWriter, r *http.Request, _ Params) {
	a.Supervisor.Stop()
	writeJSON(w, http.StatusOK, a.Supervisor.State())
}

func (a *API) step(w http.ResponseWriter, r *http.Request, _ Params) {
	if err := a.Supervisor.Step(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Supervisor.State())
}

type speedRequest struct {
	Hz float64 `json:"hz"`
}

func (a *API) setSpeed(w http.ResponseWriter, r *http.Request, _ Params) {
	var req speedRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a.Supervisor.SetSpeed(req.Hz)
	writeJSON(w, http.StatusOK, a.Supervisor.State())
}

func (a *API) getState(w http.ResponseWriter, r *http.Request, _ Params) {
	writeJSON(w, http.StatusOK, a.Supervisor.State())
}

func (a *API) listWorkspaces(w http.ResponseWriter, r *http.Request, _ Params) {
	names, err := a.Workspaces.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (a *API) saveWorkspace(w http.ResponseWriter, r *http.Request, ps Params) {
	if err := a.Workspaces.Save(ps.ByName("name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (a *API) loadWorkspace(w http.ResponseWriter, r *http.Request, ps Params) {
	if err := a.Workspaces.Load(ps.ByName("name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Registry.Snapshot())
}

func (a *API) deleteWorkspace(w http.ResponseWriter, r *http.Request, ps Params) {
	if err := a.Workspaces.Delete(ps.ByName("name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (a *API) clearWorkspace(w http.ResponseWriter, r *http.Request, _ Params) {
	a.Workspaces.Clear()
	writeJSON(w, http.StatusOK, nil)
}

func (a *API) currentWorkspace(w http.ResponseWriter, r *http.Request, _ Params) {
	writeJSON(w, http.StatusOK, map[string]string{"name": a.Workspaces.Current()})
}
