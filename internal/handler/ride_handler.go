/*
Package handler provides the HTTP handlers and routing setup for the CycleConnect server.

This file contains ride listing, creation and the join/leave ledger endpoints.
*/
package handler

import (
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cycleconnect/internal/app/events"
	"cycleconnect/internal/app/message"
	"cycleconnect/internal/app/ride"
	"cycleconnect/internal/app/user"
	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/metrics"
	"cycleconnect/internal/pkg/randx"
	"cycleconnect/internal/pkg/req"
	"cycleconnect/internal/pkg/resp"
)

// historyLimit is the number of recent messages returned to the chat panel.
const historyLimit = 50

type rideListResponse struct {
	Rides      []ride.View     `json:"rides"`
	Pagination ride.Pagination `json:"pagination"`
}

// HandleListRides returns one page of rides. Scheduled rides are limited to future ones.
func HandleListRides(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		page, customErr := req.QueryInt(r, "page", 1)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		limit, customErr := req.QueryInt(r, "limit", ride.DefaultPageSize)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = ride.DefaultPageSize
		}
		if limit > ride.MaxPageSize {
			limit = ride.MaxPageSize
		}
		if page > math.MaxInt/limit {
			page = math.MaxInt / limit
		}

		status := ride.StatusScheduled
		if s := strings.TrimSpace(q.Get("status")); s != "" {
			status = ride.Status(s)
			if !status.Valid() {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams).WithField("status", "is not a valid ride status"))
				return
			}
		}

		filter := ride.ListFilter{
			RideType:   strings.TrimSpace(q.Get("rideType")),
			Difficulty: strings.TrimSpace(q.Get("difficulty")),
			Status:     status,
			Page:       page,
			Limit:      limit,
			Now:        deps.now(),
		}

		rides, total, err := deps.Store.ListRides(r.Context(), filter)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		views, err := deps.populateRides(r.Context(), rides...)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		resp.RespondSuccess(w, r, rideListResponse{
			Rides:      views,
			Pagination: ride.NewPagination(page, limit, total),
		})
	}
}

// HandleNearbyRides lists upcoming scheduled rides starting near a point.
func HandleNearbyRides(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin, radius, limit, customErr := nearbyParams(r, ride.DefaultRadiusKm)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		rides, err := deps.Store.NearbyRides(r.Context(), ride.NearbyQuery{
			Origin:   origin,
			RadiusKm: radius,
			Limit:    limit,
			Now:      deps.now(),
		})
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		views, err := deps.populateRides(r.Context(), rides...)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}
		resp.RespondSuccess(w, r, views)
	}
}

// HandleGetRide returns a ride with organizer and participants populated.
func HandleGetRide(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rd, err := deps.Store.GetRide(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrRideNotFound))
			return
		}

		views, err := deps.populateRides(r.Context(), rd)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}
		resp.RespondSuccess(w, r, views[0])
	}
}

// HandleCreateRide creates a ride organized by the caller.
func HandleCreateRide(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)

		var input ride.CreateInput
		if customErr := req.DecodeJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		input.Normalize()
		if customErr := req.Validate(&input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		rd, customErr := input.NewRide(randx.ID(), me.ID, deps.now())
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.Store.CreateRide(r.Context(), rd); err != nil {
			logx.Ctx(r.Context()).Error().Err(err).Msg("Failed to create ride")
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		deps.publish(r.Context(), events.Event{Type: events.RideCreated, RideID: rd.ID, UserID: me.ID})
		logx.Ctx(r.Context()).Info().Str("ride_id", rd.ID).Str("user_id", me.ID).Msg("Ride created")

		views, err := deps.populateRides(r.Context(), rd)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}
		resp.RespondCreated(w, r, "Ride created successfully", views[0])
	}
}

// HandleJoinRide applies the join rules under the store's ride lock, so
// concurrent joins never confirm more riders than the ride holds.
func HandleJoinRide(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)
		rideID := chi.URLParam(r, "id")

		var outcome ride.JoinOutcome
		rd, err := deps.Store.UpdateRide(r.Context(), rideID, func(rd *ride.Ride) error {
			var err error
			outcome, err = rd.Join(me.ID)
			if err != nil {
				return err
			}
			rd.UpdatedAt = deps.now()
			return nil
		})
		if err != nil {
			customErr := storeError(err, errs.ErrRideNotFound)
			metrics.RideJoinsTotal.WithLabelValues("rejected").Inc()
			resp.RespondError(w, r, customErr)
			return
		}

		metrics.RideJoinsTotal.WithLabelValues(string(outcome)).Inc()
		deps.publish(r.Context(), events.Event{
			Type:    events.RideJoined,
			RideID:  rd.ID,
			UserID:  me.ID,
			Outcome: string(outcome),
		})

		views, err := deps.populateRides(r.Context(), rd)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}
		resp.RespondMessage(w, r, outcome.Message(), views[0])
	}
}

// HandleLeaveRide removes the caller from the confirmed and pending lists.
func HandleLeaveRide(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)
		rideID := chi.URLParam(r, "id")

		var left bool
		rd, err := deps.Store.UpdateRide(r.Context(), rideID, func(rd *ride.Ride) error {
			if left = rd.Leave(me.ID); left {
				rd.UpdatedAt = deps.now()
			}
			return nil
		})
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrRideNotFound))
			return
		}

		if left {
			deps.publish(r.Context(), events.Event{Type: events.RideLeft, RideID: rd.ID, UserID: me.ID})
		}

		views, err := deps.populateRides(r.Context(), rd)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}
		resp.RespondMessage(w, r, "Successfully left ride", views[0])
	}
}

// HandleMyRides lists the rides the caller organizes or is confirmed on, latest first.
func HandleMyRides(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)
		q := r.URL.Query()

		membership := strings.TrimSpace(q.Get("type"))
		switch membership {
		case "":
			membership = ride.MembershipAll
		case ride.MembershipAll, ride.MembershipOrganized, ride.MembershipJoined:
		default:
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams).
				WithField("type", "must be one of [all organized joined]"))
			return
		}

		status := ride.Status(strings.TrimSpace(q.Get("status")))
		if status != "" && !status.Valid() {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams).WithField("status", "is not a valid ride status"))
			return
		}

		rides, err := deps.Store.UserRides(r.Context(), ride.UserFilter{
			UserID: me.ID,
			Type:   membership,
			Status: status,
		})
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		views, err := deps.populateRides(r.Context(), rides...)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}
		resp.RespondSuccess(w, r, views)
	}
}

// HandleRideMessages returns the latest chat messages of a ride, oldest first.
// Only the organizer and confirmed participants may read them.
func HandleRideMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)

		rd, err := deps.Store.GetRide(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrRideNotFound))
			return
		}
		if !rd.IsConfirmed(me.ID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotRideMember))
			return
		}

		msgs, err := deps.Store.ListMessages(r.Context(), rd.ID, historyLimit)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		senderIDs := make([]string, 0, len(msgs))
		for _, m := range msgs {
			senderIDs = append(senderIDs, m.Sender)
		}
		senders, err := deps.Store.GetUsers(r.Context(), senderIDs)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		views := make([]message.View, 0, len(msgs))
		for _, m := range msgs {
			summary := user.UnknownSummary(m.Sender)
			if u, ok := senders[m.Sender]; ok {
				summary = u.Summary()
			}
			views = append(views, message.Populate(m, summary))
		}
		resp.RespondSuccess(w, r, views)
	}
}
