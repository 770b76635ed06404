package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/tariron/saasodoo-sub008/internal/instance/domain"
)

type createInstanceRequest struct {
	CustomerID     string  `json:"customer_id"`
	Name           string  `json:"name"`
	DBType         string  `json:"db_type"`
	SubscriptionID string  `json:"subscription_id"`
	Trial          bool    `json:"trial"`
	CPULimit       float64 `json:"cpu_limit"`
	MemoryMB       int     `json:"memory_mb"`
	StorageGB      int     `json:"storage_gb"`
}

func (s *Server) CreateInstance(c *gin.Context) {
	var req createInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		AbortWithError(c, newValidationError("invalid_customer_id", "customer_id must be a valid id"))
		return
	}

	instance, err := s.instances.Create(c.Request.Context(), domain.CreateRequest{
		CustomerID:     customerID,
		Name:           req.Name,
		DBType:         domain.DBType(strings.ToLower(strings.TrimSpace(req.DBType))),
		SubscriptionID: strings.TrimSpace(req.SubscriptionID),
		Trial:          req.Trial,
		CPULimit:       req.CPULimit,
		MemoryMB:       req.MemoryMB,
		StorageGB:      req.StorageGB,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":     instance.ID.String(),
		"status": instance.Status,
	})
}

func (s *Server) ListInstances(c *gin.Context) {
	var customerID snowflake.ID
	if raw := strings.TrimSpace(c.Query("customer_id")); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("invalid_customer_id", "customer_id must be a valid id"))
			return
		}
		customerID = parsed
	}

	instances, err := s.instances.List(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instances": instances})
}

func (s *Server) GetInstance(c *gin.Context) {
	id, ok := s.instanceID(c)
	if !ok {
		return
	}
	instance, err := s.instances.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	subscription, err := s.subs.FindByInstanceID(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"instance":     instance,
		"subscription": subscription,
	})
}

func (s *Server) RetryInstance(c *gin.Context) {
	id, ok := s.instanceID(c)
	if !ok {
		return
	}
	taskID, err := s.instances.Retry(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID.String()})
}

func (s *Server) StartInstance(c *gin.Context) {
	id, ok := s.instanceID(c)
	if !ok {
		return
	}
	taskID, err := s.instances.Start(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID.String()})
}

func (s *Server) StopInstance(c *gin.Context) {
	id, ok := s.instanceID(c)
	if !ok {
		return
	}
	taskID, err := s.instances.Stop(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID.String()})
}

func (s *Server) TerminateInstance(c *gin.Context) {
	id, ok := s.instanceID(c)
	if !ok {
		return
	}
	taskID, err := s.instances.Terminate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID.String()})
}

func (s *Server) instanceID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("invalid_instance_id", "instance id must be a valid id"))
		return 0, false
	}
	return id, true
}
