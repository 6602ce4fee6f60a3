/*
Package handler provides the HTTP handlers and routing setup for the CycleConnect server.

This file contains the profile, location, nearby cyclist, account and avatar endpoints.
*/
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cycleconnect/internal/app/storage"
	"cycleconnect/internal/app/store"
	"cycleconnect/internal/app/user"
	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/geo"
	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/req"
	"cycleconnect/internal/pkg/resp"
)

const (
	defaultNearbyLimit = 20
	maxNearbyLimit     = 100
)

// HandleGetProfile returns the caller's own user record.
func HandleGetProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, currentUser(r))
	}
}

// HandleUpdateProfile merges profile, cycling, location and preference changes.
// Email, password and server-owned fields in the body are ignored.
func HandleUpdateProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)

		var input user.ProfileUpdate
		if customErr := req.DecodeJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		input.Normalize()
		if customErr := req.Validate(&input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		oldImage := me.Profile.ProfileImage

		updated, err := deps.Store.UpdateUser(r.Context(), me.ID, func(u *user.User) error {
			if customErr := input.Apply(u, deps.now()); customErr != nil {
				return customErr
			}
			return nil
		})
		if err != nil {
			resp.RespondError(w, r, updateError(err, errs.ErrUserNotFound))
			return
		}

		if oldImage != "" && oldImage != updated.Profile.ProfileImage {
			deps.deleteAvatar(me.ID, oldImage)
		}

		resp.RespondSuccess(w, r, updated)
	}
}

// HandleGetUser returns the public profile of another user.
func HandleGetUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := deps.Store.GetUser(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrUserNotFound))
			return
		}

		resp.RespondSuccess(w, r, u.Public())
	}
}

// HandleUpdateLocation replaces the caller's location. A missing radius resets it to 25 km.
func HandleUpdateLocation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)

		var input user.LocationInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		updated, err := deps.Store.UpdateUser(r.Context(), me.ID, func(u *user.User) error {
			if customErr := input.Apply(&u.Location); customErr != nil {
				return customErr
			}
			u.UpdatedAt = deps.now()
			return nil
		})
		if err != nil {
			resp.RespondError(w, r, updateError(err, errs.ErrUserNotFound))
			return
		}

		resp.RespondMessage(w, r, "Location updated successfully", map[string]any{
			"location": updated.Location,
		})
	}
}

// HandleNearbyCyclists lists users sharing their location near a point, excluding the caller.
func HandleNearbyCyclists(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)

		origin, radius, limit, customErr := nearbyParams(r, user.DefaultRadiusKm)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		users, err := deps.Store.NearbyUsers(r.Context(), store.NearbyUsersQuery{
			Origin:    origin,
			RadiusKm:  radius,
			Limit:     limit,
			ExcludeID: me.ID,
		})
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		out := make([]user.Nearby, 0, len(users))
		for _, u := range users {
			out = append(out, u.NearbyFrom(origin))
		}
		resp.RespondSuccess(w, r, out)
	}
}

// HandleDeleteAccount removes the caller with the rides they organize and their messages.
func HandleDeleteAccount(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)

		if err := deps.Store.DeleteUser(r.Context(), me.ID); err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrUserNotFound))
			return
		}

		if me.Profile.ProfileImage != "" {
			deps.deleteAvatar(me.ID, me.Profile.ProfileImage)
		}

		logx.Ctx(r.Context()).Info().Str("user_id", me.ID).Msg("Account deleted")
		resp.RespondMessage(w, r, "Account deleted successfully", nil)
	}
}

type presignAvatarInput struct {
	FileName string `json:"fileName" validate:"required,max=255"`
	MimeType string `json:"mimeType" validate:"required"`
	FileSize int64  `json:"fileSize" validate:"required"`
}

// HandlePresignAvatar returns a time-limited URL the client uploads its profile image to.
// The resulting public URL is then saved with PUT /api/users/profile.
func HandlePresignAvatar(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.StorageService == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrStorageUnavailable))
			return
		}

		me := currentUser(r)

		var input presignAvatarInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := storage.ValidateFileSize(input.FileSize); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if customErr := storage.ValidateFileType(input.FileName, input.MimeType); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		key, err := storage.AvatarKey(me.ID, input.FileName)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		url, err := deps.StorageService.PresignUpload(r.Context(), key, input.MimeType, input.FileSize, storage.PresignedURLDuration)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"presignedUrl": url,
			"fileKey":      key,
			"publicUrl":    deps.StorageService.PublicURL(key),
			"expiresIn":    int(storage.PresignedURLDuration.Seconds()),
		})
	}
}

// deleteAvatar removes an uploaded profile image in the background when it belongs to userID.
func (d *AppDeps) deleteAvatar(userID, imageURL string) {
	if d.StorageService == nil {
		return
	}

	key, ok := d.StorageService.KeyFromURL(imageURL)
	if !ok || !storage.OwnsAvatar(userID, key) {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := d.StorageService.Delete(ctx, key); err != nil {
			logx.Warn("Failed to delete old profile image", "user_id", userID, "key", key, "error", err.Error())
		}
	}()
}

// updateError unwraps validation errors returned from an update callback.
func updateError(err error, notFoundCode int) *errs.CustomError {
	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		return customErr
	}
	return storeError(err, notFoundCode)
}

// nearbyParams reads latitude, longitude, radius (km) and limit from the query string.
func nearbyParams(r *http.Request, defaultRadius float64) (geo.Point, float64, int, *errs.CustomError) {
	lat, customErr := req.QueryFloat(r, "latitude", 0, true)
	if customErr != nil {
		return geo.Point{}, 0, 0, customErr
	}
	lon, customErr := req.QueryFloat(r, "longitude", 0, true)
	if customErr != nil {
		return geo.Point{}, 0, 0, customErr
	}

	origin := geo.NewPoint(lat, lon)
	if err := origin.Validate(); err != nil {
		return geo.Point{}, 0, 0, errs.NewError(errs.ErrInvalidParams).WithField("latitude", err.Error())
	}

	radius, customErr := req.QueryFloat(r, "radius", defaultRadius, false)
	if customErr != nil {
		return geo.Point{}, 0, 0, customErr
	}
	if radius <= 0 {
		return geo.Point{}, 0, 0, errs.NewError(errs.ErrInvalidParams).WithField("radius", "must be greater than 0")
	}

	limit, customErr := req.QueryInt(r, "limit", defaultNearbyLimit)
	if customErr != nil {
		return geo.Point{}, 0, 0, customErr
	}
	if limit < 1 {
		limit = defaultNearbyLimit
	}
	if limit > maxNearbyLimit {
		limit = maxNearbyLimit
	}

	return origin, radius, limit, nil
}
