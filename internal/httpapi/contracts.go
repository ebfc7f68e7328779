package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/owulveryck/symbion-kernel/internal/appctx"
	"github.com/owulveryck/symbion-kernel/internal/kernelerrors"
)

func handleListContracts(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.Catalog.List())
	}
}

func handleGetContract(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		contract, ok := app.Catalog.Get(name)
		if !ok {
			writeError(w, kernelerrors.NotFound("contract "+name))
			return
		}
		writeJSON(w, http.StatusOK, contract)
	}
}
