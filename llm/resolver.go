package llm

import (
	"context"
	"errors"

	"github.com/kmlawson/lmsp/errs"
	"github.com/kmlawson/lmsp/internal/logging"
	"github.com/kmlawson/lmsp/sanitize"
)

// Catalog reports the models currently loaded, in server order.
type Catalog interface {
	LoadedModels(ctx context.Context) ([]ModelDescriptor, error)
}

// Loader loads a model into the server.
type Loader interface {
	Load(ctx context.Context, name string) error
}

// FallbackCatalog asks Primary first and Secondary when Primary fails for a
// reason other than an unreachable server.
type FallbackCatalog struct {
	Primary   Catalog
	Secondary Catalog
	Logger    logging.Logger
}

func (f *FallbackCatalog) LoadedModels(ctx context.Context) ([]ModelDescriptor, error) {
	models, err := f.Primary.LoadedModels(ctx)
	if err == nil || f.Secondary == nil {
		return models, err
	}
	if errors.Is(err, errs.ErrServerUnavailable) || ctx.Err() != nil {
		return nil, err
	}
	if f.Logger != nil {
		f.Logger.Debug("Model listing failed, asking lms", "error", err)
	}
	return f.Secondary.LoadedModels(ctx)
}

// Resolver picks the model a prompt is sent to.
type Resolver struct {
	catalog  Catalog
	loader   Loader
	autoLoad bool
	logger   logging.Logger
}

// NewResolver creates a resolver. loader may be nil when autoLoad is false.
func NewResolver(catalog Catalog, loader Loader, autoLoad bool, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Resolver{catalog: catalog, loader: loader, autoLoad: autoLoad, logger: logger}
}

// Resolve returns requested when it is loaded, loading it first if auto-load
// is on. With no request it returns the first loaded model.
func (r *Resolver) Resolve(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		if err := sanitize.ValidateModelName(requested); err != nil {
			return "", err
		}
	}

	loaded, err := r.catalog.LoadedModels(ctx)
	if err != nil {
		return "", err
	}

	if requested == "" {
		if len(loaded) == 0 {
			return "", errs.Newf(errs.ErrorTypeNoModelLoaded, "no model is loaded in LM Studio")
		}
		r.logger.Info("Using first loaded model", "model", loaded[0].ID)
		return loaded[0].ID, nil
	}

	for _, m := range loaded {
		if m.Matches(requested) {
			r.logger.Debug("Requested model is loaded", "model", m.ID)
			return m.ID, nil
		}
	}

	if !r.autoLoad || r.loader == nil {
		return "", errs.Newf(errs.ErrorTypeModelNotLoaded, "model %q is not loaded", requested)
	}

	r.logger.Info("Loading model", "model", requested)
	if err := r.loader.Load(ctx, requested); err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", errs.New(errs.ErrorTypeModelNotLoaded, "failed to load model "+requested, err)
	}
	return requested, nil
}
