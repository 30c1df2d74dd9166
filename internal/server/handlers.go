package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wagtailgen/internal/imagestore"
	"wagtailgen/internal/llm/core"
	"wagtailgen/internal/pipeline"
)

type errorBody struct {
	Error string `json:"error"`
}

type answerBody struct {
	Answer string `json:"answer"`
	Cost   string `json:"cost"`
}

type refineBody struct {
	Description string `json:"description"`
	Cost        string `json:"cost"`
}

type healthBody struct {
	Status string `json:"status"`
	Backends
}

var (
	errMissingQuery      = errors.New("missing query parameter q")
	errMissingScreenshot = errors.New("missing file field screenshot")
	errImagesDisabled    = errors.New("image generation is not configured")
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthBody{Status: "ok", Backends: s.backends})
}

// handleAsk reads q from the form body, or the query string for GET.
func (s *Server) handleAsk(c *gin.Context) {
	q := c.PostForm("q")
	if strings.TrimSpace(q) == "" {
		q = c.Query("q")
	}
	if strings.TrimSpace(q) == "" {
		s.fail(c, errMissingQuery)
		return
	}

	gen, err := s.gen.Generate(c.Request.Context(), s.text, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, answerBody{Answer: gen.Code, Cost: gen.Cost})
}

func (s *Server) handleAskImage(c *gin.Context) {
	if s.image == nil {
		s.fail(c, errImagesDisabled)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	header, err := c.FormFile("screenshot")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorBody{Error: err.Error()})
			return
		}
		s.fail(c, errMissingScreenshot)
		return
	}
	f, err := header.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	img, err := s.images.Save(f)
	_ = f.Close()
	if err != nil {
		s.fail(c, err)
		return
	}

	gen, err := s.gen.GenerateFromImage(c.Request.Context(), s.image, img)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, answerBody{Answer: gen.Code, Cost: gen.Cost})
}

func (s *Server) handleRefine(c *gin.Context) {
	q := c.Query("q")
	if strings.TrimSpace(q) == "" {
		s.fail(c, errMissingQuery)
		return
	}

	ref, err := s.gen.Refine(c.Request.Context(), s.text, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, refineBody{Description: ref.Description, Cost: ref.Cost})
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errMissingQuery),
		errors.Is(err, errMissingScreenshot),
		errors.Is(err, pipeline.ErrEmptyDescription),
		errors.Is(err, imagestore.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, errImagesDisabled):
		return http.StatusNotImplemented
	case core.IsTransient(err):
		return http.StatusServiceUnavailable
	case core.IsPermanent(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
