package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/harun/vigil/pkg/notification"
	"github.com/harun/vigil/pkg/scheduler"
	"github.com/harun/vigil/pkg/tool"
)

// stopTimeout bounds how long a stop request waits for an in-flight check
const stopTimeout = 5 * time.Second

// toolView is a registry entry with its loop state, for Active tools
type toolView struct {
	tool.Info
	Schedule *scheduler.Status `json:"schedule,omitempty"`
}

func (s *Server) view(info tool.Info) toolView {
	v := toolView{Info: info}
	if info.Kind == tool.KindActive {
		if st, err := s.scheduler.Status(info.Name); err == nil {
			v.Schedule = &st
		}
	}
	return v
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	running := 0
	for _, st := range s.scheduler.Statuses() {
		if st.Running {
			running++
		}
	}

	pending := 0
	for _, n := range s.manager.ListNotifications() {
		if n.State == notification.StatePending {
			pending++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"tools":                 len(s.registry.List()),
		"running":               running,
		"pending_notifications": pending,
		"scheduled_events":      len(s.manager.ListScheduledEvents()),
		"stream_clients":        s.hub.Count(),
	})
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	infos := s.registry.Infos()
	out := make([]toolView, 0, len(infos))
	for _, info := range infos {
		out = append(out, s.view(info))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getTool(w http.ResponseWriter, r *http.Request) {
	info, err := s.registry.Info(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(info))
}

func (s *Server) startTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.scheduler.Start(name); err != nil {
		writeError(w, err)
		return
	}

	st, err := s.scheduler.Status(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) stopTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
	defer cancel()

	status := http.StatusOK
	if err := s.scheduler.Stop(ctx, name); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			writeError(w, err)
			return
		}
		// The loop is stopped; its last check is still finishing.
		status = http.StatusAccepted
	}

	st, err := s.scheduler.Status(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, st)
}

func (s *Server) checkTool(w http.ResponseWriter, r *http.Request) {
	result, err := s.scheduler.RunOnce(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) updateToolConfig(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	info, err := s.manager.UpdateToolConfig(r.Context(), chi.URLParam(r, "name"), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(info))
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	state := notification.State(q.Get("state"))
	switch state {
	case "", notification.StatePending, notification.StateApproved, notification.StateRejected, notification.StateDismissed:
	default:
		writeError(w, fmt.Errorf("%w: unknown state %q", errBadRequest, state))
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, fmt.Errorf("%w: invalid limit %q", errBadRequest, raw))
			return
		}
		limit = n
	}

	source := q.Get("tool")
	all := s.manager.ListNotifications()
	out := make([]notification.Notification, 0, len(all))
	for _, n := range all {
		if state != "" && n.State != state {
			continue
		}
		if source != "" && n.SourceTool != source {
			continue
		}
		out = append(out, n)
	}

	// newest entries are the most relevant when truncating
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getNotification(w http.ResponseWriter, r *http.Request) {
	n, err := s.manager.GetNotification(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

type respondRequest struct {
	Action notification.Action `json:"action"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	n, err := s.manager.Respond(r.Context(), chi.URLParam(r, "id"), req.Action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) listScheduledEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.ListScheduledEvents())
}

func (s *Server) scheduleEvent(w http.ResponseWriter, r *http.Request) {
	var p notification.EventParams
	if err := decode(r, &p); err != nil {
		writeError(w, err)
		return
	}
	if p.TimeOfOccur.IsZero() && p.Cron == "" {
		writeError(w, fmt.Errorf("%w: time_of_occur or cron is required", errBadRequest))
		return
	}

	e, err := s.manager.ScheduleEvent(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) cancelScheduledEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.CancelScheduledEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
