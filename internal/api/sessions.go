package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/smazurov/camstream/internal/api/models"
	"github.com/smazurov/camstream/internal/streaming"
)

// Session status values returned by the session endpoints.
const (
	statusStreaming   = "streaming"
	statusStarting    = "starting"
	statusReconfigure = "unchanged"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{camera}/sessions",
		Summary:     "List Sessions",
		Description: "Get the pending and active sessions of a camera",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraPath) (*models.SessionListResponse, error) {
		cam, err := s.cameras.Get(input.Camera)
		if err != nil {
			return nil, s.mapStreamError(err)
		}
		sessions := cam.Delegate.Sessions()
		return &models.SessionListResponse{
			Body: models.SessionListData{
				Camera:   cam.Name(),
				Sessions: sessions,
				Count:    len(sessions),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "prepare-session",
		Method:        http.MethodPost,
		Path:          "/api/cameras/{camera}/sessions",
		Summary:       "Prepare Session",
		Description:   "Allocate return ports and synchronization sources for a viewer. The session must be started before anything is sent.",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 404, 503},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.PrepareSessionRequest) (*models.PrepareSessionResponse, error) {
		cam, err := s.cameras.Get(input.Camera)
		if err != nil {
			return nil, s.mapStreamError(err)
		}

		req := input.Body
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}
		if req.AddressVersion == "" {
			req.AddressVersion = streaming.AddressIPv4
		}

		resp, err := cam.Delegate.PrepareStream(ctx, req)
		if err != nil {
			return nil, s.mapStreamError(err)
		}
		return &models.PrepareSessionResponse{
			Body: models.PrepareSessionData{
				SessionID: req.SessionID,
				Video:     resp.Video,
				Audio:     resp.Audio,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-session",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{camera}/sessions/{session_id}/start",
		Summary:     "Start Session",
		Description: "Start the transcoder for a prepared session. Responds once the first output is produced, or with 202 if that takes longer than the start timeout.",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404, 409, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.StartSessionRequest) (*models.SessionStatusResponse, error) {
		cam, err := s.cameras.Get(input.Camera)
		if err != nil {
			return nil, s.mapStreamError(err)
		}

		result := make(chan error, 1)
		cam.Delegate.StartStream(streaming.StartRequest{
			SessionID: input.SessionID,
			Video:     input.Body.Video,
			Audio:     input.Body.Audio,
		}, func(err error) {
			result <- err
		})

		ctx, cancel := context.WithTimeout(ctx, s.startTimeout())
		defer cancel()

		select {
		case err := <-result:
			if err != nil {
				return nil, s.mapStreamError(err)
			}
			return &models.SessionStatusResponse{
				Status: http.StatusOK,
				Body:   models.SessionStatusData{SessionID: input.SessionID, Status: statusStreaming},
			}, nil
		case <-ctx.Done():
			s.logger.Warn("Start still pending when request ended",
				"camera", input.Camera, "session_id", input.SessionID)
			return &models.SessionStatusResponse{
				Status: http.StatusAccepted,
				Body:   models.SessionStatusData{SessionID: input.SessionID, Status: statusStarting},
			}, nil
		}
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "reconfigure-session",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{camera}/sessions/{session_id}/reconfigure",
		Summary:     "Reconfigure Session",
		Description: "Accepted for protocol compatibility. The running transcoder keeps its parameters.",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.ReconfigureSessionRequest) (*models.SessionStatusResponse, error) {
		cam, err := s.cameras.Get(input.Camera)
		if err != nil {
			return nil, s.mapStreamError(err)
		}
		cam.Delegate.Reconfigure(streaming.ReconfigureRequest{
			SessionID: input.SessionID,
			Video:     input.Body.Video,
		})
		return &models.SessionStatusResponse{
			Status: http.StatusOK,
			Body:   models.SessionStatusData{SessionID: input.SessionID, Status: statusReconfigure},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "stop-session",
		Method:        http.MethodDelete,
		Path:          "/api/cameras/{camera}/sessions/{session_id}",
		Summary:       "Stop Session",
		Description:   "Stop a session and release its resources. Unknown sessions are ignored.",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404},
		Security:      withAuth(),
	}, func(_ context.Context, input *models.SessionPath) (*struct{}, error) {
		cam, err := s.cameras.Get(input.Camera)
		if err != nil {
			return nil, s.mapStreamError(err)
		}
		cam.Delegate.StopStream(input.SessionID)
		return &struct{}{}, nil
	})
}

func (s *Server) startTimeout() time.Duration {
	if s.options.StartTimeout > 0 {
		return s.options.StartTimeout
	}
	return defaultStartTimeout
}
