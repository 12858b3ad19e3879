package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/indexdata/patronlink/common"
)

func createCtx(method string, library string) common.ExtendedContext {
	return common.CreateExtCtxWithArgs(context.Background(), &common.LoggerArgs{
		Other: map[string]string{"method": method, "library": library},
	})
}

func writeJsonResponse(w http.ResponseWriter, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

type ErrorMessage struct {
	Error string `json:"error"`
}

func addInternalError(ctx common.ExtendedContext, w http.ResponseWriter, err error) {
	resp := ErrorMessage{
		Error: err.Error(),
	}
	ctx.Logger().Error("error serving api request", "error", err.Error())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(resp)
}

func addBadRequestError(ctx common.ExtendedContext, w http.ResponseWriter, err error) {
	resp := ErrorMessage{
		Error: err.Error(),
	}
	ctx.Logger().Error("error serving api request", "error", err.Error())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(resp)
}

func readJsonRequest(ctx common.ExtendedContext, w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		addBadRequestError(ctx, w, err)
		return false
	}
	return true
}
