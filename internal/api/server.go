// Package api exposes spec generation over HTTP so simulation frontends can
// request stage graphs without shelling out to the CLI.
package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/chipletsim/chipletc/internal/logger"
	"github.com/chipletsim/chipletc/internal/modelcfg"
	"github.com/chipletsim/chipletc/internal/stagegraph"
)

// Server handles spec-generation requests. It holds no mutable state; every
// request produces an independent document.
type Server struct {
	log logger.Logger
}

// NewServer creates a Server logging through log.
func NewServer(log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{log: log}
}

// Register installs the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/specs", s.handleGenerateSpec)
	e.GET("/healthz", s.handleHealth)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerateSpec(c *echo.Context) error {
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, "malformed request body: "+err.Error())
	}

	shape, err := modelcfg.Resolve(req.Config, modelcfg.Overrides{
		HiddenSize:       req.Overrides.HiddenSize,
		IntermediateSize: req.Overrides.IntermediateSize,
		Layers:           req.Overrides.Layers,
		NumExperts:       req.Overrides.NumExperts,
		ExpertsPerToken:  req.Overrides.ExpertsPerTok,
		SeqLength:        orDefault(req.Overrides.SeqLength, stagegraph.DefaultSeqLength),
		Batch:            orDefault(req.Overrides.Batch, stagegraph.DefaultBatch),
		DtypeBytes:       orDefault(req.Overrides.DtypeBytes, stagegraph.DefaultDtypeBytes),
	})
	if err != nil {
		if errors.Is(err, modelcfg.ErrConfig) {
			return writeBadRequest(c, err.Error())
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}

	scale := req.Placement.DigitalLatencyScale
	if scale <= 0 {
		scale = 1.0
	}
	params := stagegraph.Params{
		Layers:              shape.NumLayers,
		HiddenSize:          shape.HiddenSize,
		IntermediateSize:    shape.IntermediateSize,
		NumExperts:          shape.NumExperts,
		ExpertsPerToken:     shape.ExpertsPerToken,
		SeqLength:           shape.SeqLength,
		Batch:               shape.Batch,
		DtypeBytes:          shape.DtypeBytes,
		DigitalChiplets:     orDefault(req.Placement.DigitalChiplets, stagegraph.DefaultDigitalChiplets),
		RRAMChiplets:        orDefault(req.Placement.RRAMChiplets, stagegraph.DefaultRRAMChiplets),
		DigitalLatencyScale: scale,
		ChunkBytes:          orDefault(req.Placement.ChunkBytes, stagegraph.DefaultChunkBytes),
	}

	doc := stagegraph.Emit(req.Config.SpecName(req.Name), stagegraph.Build(params), params)

	buildID := uuid.NewString()
	c.Response().Header().Set("X-Build-ID", buildID)
	s.log.Info("generated spec",
		"build_id", buildID,
		"name", doc.Name,
		"stages", len(doc.Sequence),
		"layers", params.Layers,
		"experts", params.NumExperts)
	return c.JSON(http.StatusOK, doc)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": RequestError{Message: msg, Type: errType},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
