// Package routes registers the HTTP API: service status, extraction
// requests, content retrieval, and task status.
package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"arxiv-fulltext-service/internal/extract"
	"arxiv-fulltext-service/internal/logger"
	"arxiv-fulltext-service/internal/store"
	"arxiv-fulltext-service/internal/telemetry"
	"arxiv-fulltext-service/middleware"
	"arxiv-fulltext-service/models"
	"arxiv-fulltext-service/services"
	"arxiv-fulltext-service/utils"
)

// TaskCoordinator is the slice of the extraction coordinator the handlers
// consume.
type TaskCoordinator interface {
	CreateTask(ctx context.Context, identifier, bucket, owner, token string, force bool) (string, error)
	GetTask(ctx context.Context, identifier, bucket, version string) (*models.Extraction, error)
	IsAvailable(ctx context.Context, awaitResult bool) bool
}

// ExtractionStore is the read side of the store the handlers consume.
type ExtractionStore interface {
	Retrieve(identifier, version, format, bucket string, metaOnly bool) (*models.Extraction, error)
	IsAvailable() bool
}

// CanonicalSource answers existence checks for announced e-prints.
type CanonicalSource interface {
	Exists(ctx context.Context, identifier string) (bool, error)
}

// PreviewSource answers ownership lookups for submission previews.
type PreviewSource interface {
	GetOwner(ctx context.Context, identifier, token string) (string, error)
}

// SetupExtractionRoutes wires the extraction API onto the router. The
// status route must be registered before the bucket wildcard so gin
// resolves it as a static sibling.
func SetupExtractionRoutes(
	router *gin.Engine,
	st ExtractionStore,
	coordinator TaskCoordinator,
	canonical CanonicalSource,
	previews PreviewSource,
	auth *middleware.AuthMiddleware,
	metrics *telemetry.Metrics,
) {
	router.GET("/status", HandleServiceStatus(st, coordinator))

	router.POST("/:bucket/*identifier", auth.Identify(),
		HandleStartExtraction(st, coordinator, canonical, previews, auth, metrics))
	router.GET("/:bucket/*identifier", auth.Identify(),
		HandleRetrieve(st, coordinator, auth))
}

// HandleServiceStatus reports readiness of the storage volume and the task
// queue. The queue probe round-trips through a live worker, so a green
// status means the whole pipeline can move.
func HandleServiceStatus(st ExtractionStore, coordinator TaskCoordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		storage := st.IsAvailable()
		extractor := coordinator.IsAvailable(c.Request.Context(), true)

		code := http.StatusOK
		if !storage || !extractor {
			code = http.StatusInternalServerError
		}
		c.JSON(code, gin.H{"storage": storage, "extractor": extractor})
	}
}

// HandleStartExtraction requests a new extraction for a document. The
// identifier must resolve to a PDF at the bucket's source; requests for
// documents the requester may not see read as missing.
func HandleStartExtraction(
	st ExtractionStore,
	coordinator TaskCoordinator,
	canonical CanonicalSource,
	previews PreviewSource,
	auth *middleware.AuthMiddleware,
	metrics *telemetry.Metrics,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		bucket := c.Param("bucket")
		req, ok := parseExtractionPath(bucket, c.Param("identifier"))
		if !ok || !models.ValidBucket(bucket) || req.Status || req.Version != "" || req.Format != "" {
			utils.RespondWithNotFound(c, "no such resource")
			return
		}
		identifier := req.Identifier
		ctx := c.Request.Context()
		token := middleware.Token(c)

		var owner string
		switch bucket {
		case models.BucketArxiv:
			exists, err := canonical.Exists(ctx, identifier)
			if err != nil {
				logger.Error("could not check canonical source",
					"identifier", identifier, "error", err)
				utils.RespondWithInternalError(c, "could not verify document", nil)
				return
			}
			if !exists {
				utils.RespondWithNotFound(c, "no such document")
				return
			}
		case models.BucketSubmission:
			var err error
			owner, err = previews.GetOwner(ctx, identifier, token)
			if errors.Is(err, services.ErrDoesNotExist) {
				utils.RespondWithNotFound(c, "no such document")
				return
			}
			if err != nil {
				logger.Error("could not check preview source",
					"identifier", identifier, "error", err)
				utils.RespondWithInternalError(c, "could not verify document", nil)
				return
			}
		}

		authorized := auth.AuthorizerFor(c)
		if !authorized(identifier, owner) {
			utils.RespondWithNotFound(c, "no such document")
			return
		}

		force := c.Query("force") == "true"
		if !force {
			existing, err := st.Retrieve(identifier, "", "", bucket, true)
			if err == nil {
				if !authorized(identifier, existing.Owner) {
					utils.RespondWithNotFound(c, "no such document")
					return
				}
				redirectExisting(c, bucket, identifier, existing.Status)
				return
			}
			if !errors.Is(err, store.ErrDoesNotExist) {
				logger.Error("could not read extraction record",
					"identifier", identifier, "error", err)
				utils.RespondWithInternalError(c, "could not read extraction state", nil)
				return
			}
		}

		taskID, err := coordinator.CreateTask(ctx, identifier, bucket, owner, token, force)
		if err != nil {
			logger.Error("could not create extraction task",
				"identifier", identifier, "error", err)
			utils.RespondWithInternalError(c, "could not start extraction", nil)
			return
		}
		metrics.TasksCreated.Add(ctx, 1)

		c.Header("Location", statusURL(bucket, identifier))
		c.JSON(http.StatusAccepted, gin.H{
			"task_id": taskID,
			"reason":  "extraction in process",
		})
	}
}

// redirectExisting points the client at the extraction that already covers
// the request: at the status endpoint while it runs, at the content once
// it has finished.
func redirectExisting(c *gin.Context, bucket, identifier string, status models.Status) {
	target := statusURL(bucket, identifier)
	reason := "extraction in process"
	if status.Terminal() {
		target = contentURL(bucket, identifier)
		reason = "extraction already exists"
	}
	c.Header("Location", target)
	c.JSON(http.StatusSeeOther, gin.H{"reason": reason})
}

// HandleRetrieve serves both extraction content and task status, depending
// on whether the request path ends in /status.
func HandleRetrieve(st ExtractionStore, coordinator TaskCoordinator, auth *middleware.AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		bucket := c.Param("bucket")
		req, ok := parseExtractionPath(bucket, c.Param("identifier"))
		if !ok || !models.ValidBucket(bucket) {
			utils.RespondWithNotFound(c, "no such resource")
			return
		}
		if req.Status {
			serveTaskStatus(c, st, coordinator, auth, req)
			return
		}
		serveContent(c, st, auth, req)
	}
}

func serveContent(c *gin.Context, st ExtractionStore, auth *middleware.AuthMiddleware, req extractionRequest) {
	format := req.Format
	if format == "" {
		format = models.FormatPlain
	}
	if !models.ValidFormat(format) {
		utils.RespondWithNotFound(c, "no such format")
		return
	}

	extraction, err := st.Retrieve(req.Identifier, req.Version, format, req.Bucket, false)
	if errors.Is(err, store.ErrDoesNotExist) {
		utils.RespondWithNotFound(c, "no such extraction")
		return
	}
	if err != nil {
		logger.Error("could not read extraction",
			"identifier", req.Identifier, "error", err)
		utils.RespondWithInternalError(c, "could not read extraction", nil)
		return
	}
	if !auth.AuthorizerFor(c)(req.Identifier, extraction.Owner) {
		utils.RespondWithNotFound(c, "no such extraction")
		return
	}

	if extraction.Content == "" && extraction.Status == models.StatusInProgress {
		c.Header("Location", statusURL(req.Bucket, req.Identifier))
		c.JSON(http.StatusSeeOther, gin.H{"reason": "extraction in process"})
		return
	}

	// Terminal records are served as they stand: a failed record carries
	// its exception, a missing blob reads as a record without content.
	if extraction.Content != "" &&
		c.NegotiateFormat(gin.MIMEJSON, gin.MIMEPlain) == gin.MIMEPlain {
		c.String(http.StatusOK, extraction.Content)
		return
	}
	c.JSON(http.StatusOK, extraction.ToDict())
}

// serveTaskStatus merges the stored metadata record with the live queue
// state. The store is authoritative for terminal results; the queue fills
// in progress detail while a task runs.
func serveTaskStatus(c *gin.Context, st ExtractionStore, coordinator TaskCoordinator,
	auth *middleware.AuthMiddleware, req extractionRequest) {
	extraction, err := st.Retrieve(req.Identifier, req.Version, "", req.Bucket, true)
	if errors.Is(err, store.ErrDoesNotExist) {
		utils.RespondWithNotFound(c, "no such task")
		return
	}
	if err != nil {
		logger.Error("could not read extraction record",
			"identifier", req.Identifier, "error", err)
		utils.RespondWithInternalError(c, "could not read extraction state", nil)
		return
	}
	if !auth.AuthorizerFor(c)(req.Identifier, extraction.Owner) {
		utils.RespondWithNotFound(c, "no such task")
		return
	}

	if extraction.Status == models.StatusSucceeded {
		c.Header("Location", contentURL(req.Bucket, req.Identifier))
		c.JSON(http.StatusSeeOther, extraction.ToDict())
		return
	}

	version := req.Version
	if version == "" {
		version = extraction.Version
	}
	task, err := coordinator.GetTask(c.Request.Context(), req.Identifier, req.Bucket, version)
	if err != nil {
		if !errors.Is(err, extract.ErrNoSuchTask) {
			logger.Error("could not resolve task state",
				"identifier", req.Identifier, "error", err)
		}
		// The queue has forgotten the task; the stored record is all
		// there is.
		c.JSON(http.StatusOK, extraction.ToDict())
		return
	}

	merged := extraction.Copy()
	merged.Status = task.Status
	if task.Exception != "" {
		merged.Exception = task.Exception
	}
	if task.Status == models.StatusSucceeded {
		c.Header("Location", contentURL(req.Bucket, req.Identifier))
		c.JSON(http.StatusSeeOther, merged.ToDict())
		return
	}
	c.JSON(http.StatusOK, merged.ToDict())
}
