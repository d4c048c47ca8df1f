package handlers

import (
	"net/http"

	"github.com/camden-git/photovault/services"
)

type ScanHandler struct {
	Service *services.ScanService
}

func (sh *ScanHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	id, err := sh.Service.Trigger(r.Context())
	if err != nil {
		writeError(w, err, "queue scan")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

func (sh *ScanHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := sh.Service.Status(r.Context())
	if err != nil {
		writeError(w, err, "read scan status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
