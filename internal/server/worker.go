package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/morezero/void-worker/internal/config"
	"github.com/morezero/void-worker/pkg/appconfig"
	"github.com/morezero/void-worker/pkg/bootstrap"
	"github.com/morezero/void-worker/pkg/chat"
	"github.com/morezero/void-worker/pkg/dispatcher"
	"github.com/morezero/void-worker/pkg/events"
	"github.com/morezero/void-worker/pkg/multiplexer"
	"github.com/morezero/void-worker/pkg/overrides"
	"github.com/morezero/void-worker/pkg/protocol"
	"github.com/morezero/void-worker/pkg/router"
	"github.com/morezero/void-worker/pkg/vfs"
)

const workerLogPrefix = "server:worker"

// Worker owns the stores, the command registry and the resolution router.
type Worker struct {
	Name       string
	Dispatcher *dispatcher.Dispatcher
	Overrides  *overrides.Store
	Files      *vfs.FS
	Config     *appconfig.Service
	Chat       *chat.Conversation
	Router     *router.Router
}

// WorkerParams holds the collaborators NewWorker wires together. Nil
// ConfigStore keeps configuration in memory, nil Publisher disables change
// events, nil Model uses the OpenAI-compatible client.
type WorkerParams struct {
	Cfg         *config.Config
	Defaults    *bootstrap.Defaults
	ConfigStore appconfig.Store
	Publisher   events.EventPublisher
	Model       chat.Model
	HTTPClient  *http.Client
}

// NewWorker builds every store, registers all commands and seeds defaults.
func NewWorker(ctx context.Context, p WorkerParams) (*Worker, error) {
	defaults := p.Defaults
	if defaults == nil {
		defaults = bootstrap.BuiltIn()
	}
	publisher := events.OrNoOp(p.Publisher)

	files, err := vfs.Open(p.Cfg.VFSRoot, vfs.WithPublisher(publisher))
	if err != nil {
		return nil, fmt.Errorf("%s - failed to open filesystem: %w", workerLogPrefix, err)
	}
	store := overrides.NewStore()
	if err := bootstrap.Seed(ctx, defaults, files, store); err != nil {
		return nil, err
	}

	cfgSvc := appconfig.NewService(defaults.AppConfig(), p.ConfigStore, publisher)
	if err := cfgSvc.Load(ctx); err != nil {
		return nil, err
	}

	tools, err := vfs.NewToolset(files)
	if err != nil {
		return nil, err
	}
	model := p.Model
	if model == nil {
		model = chat.NewOpenAI(nil)
	}
	conv := chat.NewConversation(model, cfgSvc, chat.WithTools(tools), chat.WithPublisher(publisher))

	rt, err := router.New(router.Options{
		Overrides: store,
		Files:     files,
		Client:    p.HTTPClient,
		Timeout:   p.Cfg.NetworkTimeout,
		Origin:    p.Cfg.OriginURL,
	})
	if err != nil {
		return nil, err
	}

	w := &Worker{
		Name:       p.Cfg.COMMSName,
		Dispatcher: dispatcher.NewDispatcher(),
		Overrides:  store,
		Files:      files,
		Config:     cfgSvc,
		Chat:       conv,
		Router:     rt,
	}
	cfgSvc.Register(w.Dispatcher)
	conv.Register(w.Dispatcher)
	overrides.NewHandlers(store, publisher).Register(w.Dispatcher)
	vfs.Register(w.Dispatcher, files)
	w.Dispatcher.Register("worker.info", dispatcher.Func(func(context.Context, any) (any, error) {
		return w.Info(), nil
	}))

	slog.Info(fmt.Sprintf("%s - Worker %s ready with %d commands (filesystem %s)",
		workerLogPrefix, w.Name, len(w.Dispatcher.Commands()), files.Root()))
	return w, nil
}

// Info describes the worker for the worker.info command.
func (w *Worker) Info() multiplexer.WorkerInfo {
	return multiplexer.WorkerInfo{
		Name:     w.Name,
		Version:  protocol.Version,
		Commands: w.Dispatcher.Commands(),
	}
}
