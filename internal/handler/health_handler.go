package handler

import "net/http"

type healthResponse struct {
	Status string `json:"status"`
}

// Health は稼働確認用の固定レスポンスを返す。
//
//	@Summary	Health check
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	healthResponse
//	@Router		/health [get]
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "All is well"})
}
