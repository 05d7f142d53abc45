// script_monitor.go: JavaScript monitors executed with goja
//
// A script monitor compiles its source in Init and calls the script's entry
// function once per dispatched event:
//
//	function run(event) {
//	    if (event.content === "!ping") {
//	        log("pong", event.authorId);
//	    }
//	}
//
// The script sees a global log(message, ...keyvals) bound to the piece's
// logger and a piece object with name, kind and disable(). A syntax error or
// a missing entry function fails Init, so a broken edit never replaces a
// working monitor on reload.
//
// Manifest options (one of script or source is required):
//
//	script:   path of the .js file, relative to the manifest directory
//	source:   inline JavaScript
//	entry:    entry function name (default "run")
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package builtin

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/viant/afs"

	gopieces "github.com/agilira/go-pieces"
)

const defaultEntry = "run"

// ScriptMonitor runs a JavaScript entry function for every event.
type ScriptMonitor struct {
	*gopieces.Monitor

	fs       afs.Service
	location string
	source   string
	entry    string

	mu     sync.Mutex
	vm     *goja.Runtime
	run    goja.Callable
	logger gopieces.Logger
	last   any
	runs   atomic.Int64
}

// NewScriptMonitor is the "script" monitor constructor.
func NewScriptMonitor(owner gopieces.Owner, dir, fileName, name string, opts gopieces.Options) (gopieces.Piece, error) {
	m, err := newScriptMonitor(owner, dir, fileName, name, opts, afs.New())
	if err != nil {
		return nil, err
	}
	return m, nil
}

func newScriptMonitor(owner gopieces.Owner, dir, fileName, name string, opts gopieces.Options, fs afs.Service) (*ScriptMonitor, error) {
	base, err := gopieces.NewMonitor(owner, dir, fileName, name, opts)
	if err != nil {
		return nil, err
	}
	script, err := opts.String("script", "")
	if err != nil {
		return nil, err
	}
	source, err := opts.String("source", "")
	if err != nil {
		return nil, err
	}
	if script == "" && source == "" {
		return nil, gopieces.NewMissingOptionError("script")
	}
	entry, err := opts.String("entry", defaultEntry)
	if err != nil {
		return nil, err
	}

	m := &ScriptMonitor{Monitor: base, fs: fs, source: source, entry: entry}
	if script != "" {
		m.location = resolveLocation(dir, script)
	}
	return m, nil
}

// Init reads and compiles the script and looks up its entry function.
func (m *ScriptMonitor) Init(ctx context.Context) error {
	m.logger = gopieces.LoggerFromContext(ctx)

	source := m.source
	origin := m.Name() + ".js"
	if m.location != "" {
		data, err := m.fs.DownloadWithURL(ctx, m.location)
		if err != nil {
			return NewStorageFailureError("read", m.location, err)
		}
		source = string(data)
		origin = m.location
	}

	program, err := goja.Compile(origin, source, false)
	if err != nil {
		return NewScriptCompileError(origin, err)
	}

	vm := goja.New()
	if err := m.bindGlobals(vm); err != nil {
		return NewScriptExecutionError(origin, err)
	}
	if _, err := vm.RunProgram(program); err != nil {
		return NewScriptExecutionError(origin, err)
	}
	run, ok := goja.AssertFunction(vm.Get(m.entry))
	if !ok {
		return NewScriptContractError(origin, "script does not define function "+m.entry)
	}

	m.mu.Lock()
	m.vm = vm
	m.run = run
	m.mu.Unlock()
	m.logger.Debug("Script compiled", "origin", origin, "entry", m.entry)
	return nil
}

func (m *ScriptMonitor) bindGlobals(vm *goja.Runtime) error {
	if err := vm.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]any, 0, len(call.Arguments))
		for _, arg := range call.Arguments[min(1, len(call.Arguments)):] {
			args = append(args, arg.Export())
		}
		m.logger.Info(call.Argument(0).String(), args...)
		return goja.Undefined()
	}); err != nil {
		return err
	}

	piece := vm.NewObject()
	if err := piece.Set("name", m.Name()); err != nil {
		return err
	}
	if err := piece.Set("kind", m.Kind().String()); err != nil {
		return err
	}
	if err := piece.Set("disable", func(goja.FunctionCall) goja.Value {
		m.Disable()
		return goja.Undefined()
	}); err != nil {
		return err
	}
	return vm.Set("piece", piece)
}

// Run calls the entry function with the event. Cancelling ctx interrupts
// the script.
func (m *ScriptMonitor) Run(ctx context.Context, event *gopieces.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		return gopieces.NewNotReadyError(m.Name(), m.State())
	}

	vm := m.vm
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
		close(interrupted)
	})
	defer func() {
		if !stop() {
			<-interrupted
		}
		vm.ClearInterrupt()
	}()

	result, err := m.run(goja.Undefined(), vm.ToValue(eventObject(event)))
	m.runs.Add(1)
	if err != nil {
		return NewScriptExecutionError(m.Name(), err)
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		m.last = nil
	} else {
		m.last = result.Export()
	}
	return nil
}

// LastResult returns the exported value the entry function last returned.
func (m *ScriptMonitor) LastResult() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Runs counts entry function calls, successful or not.
func (m *ScriptMonitor) Runs() int64 { return m.runs.Load() }

func eventObject(event *gopieces.Event) map[string]any {
	return map[string]any{
		"id":         event.ID,
		"channel":    event.Channel,
		"authorId":   event.AuthorID,
		"authorBot":  event.AuthorBot,
		"content":    event.Content,
		"payload":    event.Payload,
		"receivedAt": event.ReceivedAt.UnixMilli(),
	}
}
