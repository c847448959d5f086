package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camstream/internal/api/models"
	"github.com/smazurov/camstream/internal/cameras"
	"github.com/smazurov/camstream/internal/config"
	"github.com/smazurov/camstream/internal/ffmpeg"
	"github.com/smazurov/camstream/internal/snapshot"
	"github.com/smazurov/camstream/internal/streaming"
)

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/cameras",
		Summary:     "List Cameras",
		Description: "Get all configured cameras with their session counts",
		Tags:        []string{"cameras"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.CameraListResponse, error) {
		list := s.cameras.List()
		data := make([]models.CameraData, 0, len(list))
		for _, cam := range list {
			data = append(data, cameraToAPI(cam))
		}
		return &models.CameraListResponse{
			Body: models.CameraListData{
				Cameras: data,
				Count:   len(data),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-snapshot",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{camera}/snapshot",
		Summary:     "Camera Snapshot",
		Description: "Fetch a JPEG still from the camera, resized to the requested dimensions. Snapshots taken within a few seconds of each other are shared.",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 502},
		Security:    withAuth(),
		Responses: map[string]*huma.Response{
			"200": {
				Description: "JPEG image",
				Content: map[string]*huma.MediaType{
					"image/jpeg": {},
				},
			},
		},
	}, func(ctx context.Context, input *models.SnapshotRequest) (*models.SnapshotResponse, error) {
		cam, err := s.cameras.Get(input.Camera)
		if err != nil {
			return nil, s.mapStreamError(err)
		}

		image, err := cam.Snapshots.HandleSnapshotRequest(ctx, input.Width, input.Height)
		if err != nil {
			return nil, s.mapSnapshotError(err)
		}

		return &models.SnapshotResponse{
			ContentType:  "image/jpeg",
			CacheControl: "no-store",
			Body:         image,
		}, nil
	})
}

func cameraToAPI(cam *cameras.Camera) models.CameraData {
	video := cam.Config.Video
	codec := video.VCodec
	if codec == "" {
		codec = ffmpeg.DefaultVideoCodec
	}
	maxStreams := video.MaxStreams
	if maxStreams <= 0 {
		maxStreams = config.DefaultMaxStreams
	}
	return models.CameraData{
		Name:           cam.Name(),
		Codec:          codec,
		Audio:          video.Audio,
		TwoWay:         video.ReturnAudioTarget != "",
		Unbridge:       cam.Config.Unbridge,
		MaxStreams:     maxStreams,
		ActiveSessions: cam.Delegate.ActiveCount(),
	}
}

func (s *Server) mapSnapshotError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("snapshot timed out", err)
	case errors.Is(err, snapshot.ErrNoData):
		return huma.Error502BadGateway("camera produced no image", err)
	default:
		return huma.Error502BadGateway("failed to fetch snapshot", err)
	}
}

// mapStreamError converts camera and session errors to HTTP errors.
func (s *Server) mapStreamError(err error) error {
	if errors.Is(err, cameras.ErrCameraNotFound) {
		return huma.Error404NotFound(err.Error(), err)
	}
	if errors.Is(err, streaming.ErrClosed) {
		return huma.Error503ServiceUnavailable(err.Error(), err)
	}

	var streamErr *streaming.StreamError
	if errors.As(err, &streamErr) {
		switch streamErr.Code {
		case streaming.ErrCodeSessionNotFound:
			return huma.Error404NotFound(streamErr.Message, err)
		case streaming.ErrCodeTooManyStreams, streaming.ErrCodeSessionActive:
			return huma.Error409Conflict(streamErr.Message, err)
		case streaming.ErrCodeInvalidSRTP:
			return huma.Error400BadRequest(streamErr.Message, err)
		case streaming.ErrCodePortAllocation, streaming.ErrCodeSocket:
			return huma.Error503ServiceUnavailable(streamErr.Message, err)
		default:
			return huma.Error500InternalServerError("internal server error", err)
		}
	}
	return huma.Error500InternalServerError("internal server error", err)
}
