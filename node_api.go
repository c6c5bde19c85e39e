package minicortex

/*
   Copyright 2018 Bruno Moura <brunotm@gmail.com>

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Node is the contract every node implementation fulfils. Process is
// invoked by the scheduler on every tick and once as a probe on topology
// change while stopped (spec ch.4.2).
type Node interface {
	Process(ctx *Ctx)
}

// Initializer is implemented by nodes that need one-time setup. Init runs
// exactly once when an instance is first created, again after every
// successful hot-reload, and again after workspace load completes for
// that instance (spec ch.4.2, ch.9 Open Questions).
type Initializer interface {
	Init(ctx *Ctx) error
}

// ActionFunc implements one action callback named by an Action
// descriptor. It takes a free-form parameter mapping and returns an
// opaque result or an error.
type ActionFunc func(ctx *Ctx, params map[string]interface{}) (interface{}, error)

// ActionProvider is implemented by nodes that expose one or more Action
// descriptors; it maps each declared callback name to its handler. Go has
// no reflective "call method named X" primitive used here deliberately,
// so the callback name in the descriptor and the map key below must
// agree by convention.
type ActionProvider interface {
	Actions() map[string]ActionFunc
}

// Factory instantiates a fresh Node for a class, invoked once per
// CreateInstance call and once per replacement instance during hot
// reload (spec ch.3, ch.4.6).
type Factory func() Node
