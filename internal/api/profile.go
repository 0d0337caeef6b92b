// ABOUTME: HTTP handlers for sailor profiles: read and partial update.
// ABOUTME: Profiles are per-user, not per-club — boat class and sail number travel with the sailor.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/emelleby/ilca-kns-sub001/internal/store"
)

// profileBody is the JSON shape of a sailor profile.
type profileBody struct {
	UserID     string `json:"user_id"`
	Bio        string `json:"bio"`
	Location   string `json:"location"`
	BoatClass  string `json:"boat_class"`
	SailNumber string `json:"sail_number"`
	AvatarURL  string `json:"avatar_url"`
	UpdatedAt  string `json:"updated_at"`
}

func profileResponse(p *store.Profile) profileBody {
	return profileBody{
		UserID:     p.UserID.String(),
		Bio:        p.Bio,
		Location:   p.Location,
		BoatClass:  p.BoatClass,
		SailNumber: p.SailNumber,
		AvatarURL:  p.AvatarURL,
		UpdatedAt:  p.UpdatedAt.Format(time.RFC3339),
	}
}

// getProfileInput reads the access_token cookie.
type getProfileInput struct {
	AccessToken string `cookie:"access_token" doc:"Access token cookie"`
}

// getProfileOutput is the response for GET /profile.
type getProfileOutput struct {
	Body profileBody
}

// getProfileHandler handles GET /api/v1/profile.
func (srv *Server) getProfileHandler(ctx context.Context, input *getProfileInput) (*getProfileOutput, error) {
	userID, err := srv.authedUserID(input.AccessToken)
	if err != nil {
		return nil, err
	}

	profile, err := srv.store.GetProfile(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "get profile", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if profile == nil {
		// Every account gets a profile row at registration; a miss means the
		// account itself is gone.
		return nil, huma.Error404NotFound("profile not found")
	}

	return &getProfileOutput{Body: profileResponse(profile)}, nil
}

// updateProfileInput reads the access_token cookie and the partial-update body.
// Absent fields are left unchanged; empty strings clear a field.
type updateProfileInput struct {
	AccessToken string `cookie:"access_token" doc:"Access token cookie"`
	Body        struct {
		Bio        *string `json:"bio,omitempty"         maxLength:"2048" doc:"Free-text bio"`
		Location   *string `json:"location,omitempty"    maxLength:"128"  doc:"Home port or city"`
		BoatClass  *string `json:"boat_class,omitempty"  maxLength:"64"   doc:"Boat class, e.g. ILCA 6"`
		SailNumber *string `json:"sail_number,omitempty" maxLength:"32"   doc:"Sail number"`
		AvatarURL  *string `json:"avatar_url,omitempty"  maxLength:"512"  format:"uri" doc:"Avatar image URL"`
	}
}

// updateProfileOutput is the response for PATCH /profile.
type updateProfileOutput struct {
	Body profileBody
}

// updateProfileHandler handles PATCH /api/v1/profile.
func (srv *Server) updateProfileHandler(ctx context.Context, input *updateProfileInput) (*updateProfileOutput, error) {
	userID, err := srv.authedUserID(input.AccessToken)
	if err != nil {
		return nil, err
	}

	profile, err := srv.store.UpdateProfile(ctx, userID, store.UpdateProfileParams{
		Bio:        input.Body.Bio,
		Location:   input.Body.Location,
		BoatClass:  input.Body.BoatClass,
		SailNumber: input.Body.SailNumber,
		AvatarURL:  input.Body.AvatarURL,
	})
	if err != nil {
		slog.ErrorContext(ctx, "update profile", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if profile == nil {
		return nil, huma.Error404NotFound("profile not found")
	}

	return &updateProfileOutput{Body: profileResponse(profile)}, nil
}

// registerProfileRoutes registers the profile routes on the huma API.
func registerProfileRoutes(api huma.API, srv *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/profile",
		Tags:        []string{"profile"},
		Summary:     "Get the authenticated user's sailor profile",
	}, srv.getProfileHandler)

	huma.Register(api, huma.Operation{
		OperationID:   "update-profile",
		Method:        http.MethodPatch,
		Path:          "/profile",
		Tags:          []string{"profile"},
		Summary:       "Update the authenticated user's sailor profile",
		DefaultStatus: http.StatusOK,
	}, srv.updateProfileHandler)
}
