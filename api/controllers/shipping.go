package controllers

import (
	"context"
	"net/http"

	"github.com/PixelDroid19/puntokoreano-app/api/responses"
	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
)

// ShippingConfigSource returns the backend shipping configuration.
type ShippingConfigSource interface {
	Config(ctx context.Context) (*backend.ShippingConfig, error)
}

func ShippingConfig(src ShippingConfigSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := src.Config(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}
