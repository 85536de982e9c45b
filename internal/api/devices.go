package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/home"
)

// commandBody is the POST /api/devices/{id}/commands body.
type commandBody struct {
	Capability string         `json:"capability"`
	Action     string         `json:"action"`
	Params     map[string]any `json:"params"`
	AdapterID  string         `json:"adapter_id"`
	Priority   int            `json:"priority"`
	Confirmed  bool           `json:"confirmed"`
}

// handleListDevices lists devices, narrowed by adapter_id, area_id, type,
// capability, tag and online query parameters.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := device.Filter{
		AdapterID:  q.Get("adapter_id"),
		AreaID:     q.Get("area_id"),
		Type:       device.DeviceType(q.Get("type")),
		Capability: device.CapabilityType(q.Get("capability")),
		Tag:        q.Get("tag"),
	}
	if v := q.Get("online"); v != "" {
		online, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "online must be true or false")
			return
		}
		f.Online = &online
	}

	devices := s.home.ListDevices(r.Context(), f)
	if devices == nil {
		devices = []*device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.home.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeviceCommand validates, evaluates and runs one device command.
// A refused command answers 403 or 409 with the policy verdict as details.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	var body commandBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cmd, err := device.NewDeviceCommand(chi.URLParam(r, "id"), body.Capability, body.Action, body.Params)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}

	res, err := s.home.ExecuteDeviceCommand(r.Context(), home.CommandRequest{
		Command:   cmd,
		AdapterID: body.AdapterID,
		Priority:  body.Priority,
		Confirmed: body.Confirmed,
		UserID:    callerID(r),
		Source:    "api",
	})
	if err != nil {
		writeDomainError(w, err, verdictDetails(res))
		return
	}
	if !res.Executed {
		writeRefusal(w, res.Verdict)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func callerID(r *http.Request) string {
	if c := claimsFromContext(r.Context()); c != nil {
		return c.Subject
	}
	return ""
}

// verdictDetails returns the verdict when policy was consulted.
func verdictDetails(res home.Result) any {
	if res.Verdict.Decision == "" {
		return nil
	}
	return res.Verdict
}
