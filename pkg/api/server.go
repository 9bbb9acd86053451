// Package api provides the REST API server for pianist
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/tylerforesthauser/pianist-sub000/pkg/convert"
	"github.com/tylerforesthauser/pianist-sub000/pkg/score"
)

// @title Pianist API
// @version 1.0
// @description API for converting beat-time composition documents to Standard MIDI Files and back
// @host localhost:8080
// @BasePath /api/v1

// StartServer starts the API server on the specified port
func StartServer(port int) error {
	r := gin.Default()

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.POST("/convert/json2midi", handleJSONToMIDI)
		v1.POST("/convert/midi2json", handleMIDIToJSON)
		v1.POST("/normalize", handleNormalize)
		v1.GET("/formats", listFormats)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r.Run(fmt.Sprintf(":%d", port))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "pianist",
	})
}

// listFormats godoc
// @Summary List supported formats
// @Description Returns a list of supported file formats
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/formats [get]
func listFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"formats":     []string{"json", "midi"},
		"conversions": convert.GetSupportedConversions(),
	})
}

// handleJSONToMIDI godoc
// @Summary Convert a composition document to MIDI
// @Description Upload a composition JSON document and receive a .mid file
// @Tags convert
// @Accept multipart/form-data
// @Produce application/octet-stream
// @Param file formData file true "Composition document to convert"
// @Param normalize query bool false "Run pedal normalization first"
// @Param transpose query int false "Semitones to transpose"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Router /api/v1/convert/json2midi [post]
func handleJSONToMIDI(c *gin.Context) {
	data, name, ok := readUpload(c)
	if !ok {
		return
	}
	result, err := convert.JSONToMIDI(data, optionsFromQuery(c))
	if err != nil {
		c.JSON(conversionStatus(err), gin.H{"error": err.Error()})
		return
	}
	sendFile(c, result, name, ".mid", "audio/midi")
}

// handleMIDIToJSON godoc
// @Summary Convert a MIDI file to a composition document
// @Description Upload a .mid file and receive a composition JSON document
// @Tags convert
// @Accept multipart/form-data
// @Produce application/json
// @Param file formData file true "MIDI file to convert"
// @Param normalize query bool false "Run pedal normalization after import"
// @Param transpose query int false "Semitones to transpose"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Router /api/v1/convert/midi2json [post]
func handleMIDIToJSON(c *gin.Context) {
	data, name, ok := readUpload(c)
	if !ok {
		return
	}
	result, err := convert.MIDIToJSON(data, optionsFromQuery(c))
	if err != nil {
		c.JSON(conversionStatus(err), gin.H{"error": err.Error()})
		return
	}
	sendFile(c, result, name, ".json", "application/json")
}

// handleNormalize godoc
// @Summary Normalize a composition's pedal events
// @Description Upload a composition JSON document and receive it back with degenerate pedal patterns repaired
// @Tags convert
// @Accept multipart/form-data
// @Produce application/json
// @Param file formData file true "Composition document to normalize"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Router /api/v1/normalize [post]
func handleNormalize(c *gin.Context) {
	data, name, ok := readUpload(c)
	if !ok {
		return
	}
	result, err := convert.NormalizeJSON(data, score.DefaultPedalConfig())
	if err != nil {
		c.JSON(conversionStatus(err), gin.H{"error": err.Error()})
		return
	}
	sendFile(c, result, name, ".json", "application/json")
}

func readUpload(c *gin.Context) ([]byte, string, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return nil, "", false
	}
	return data, header.Filename, true
}

func optionsFromQuery(c *gin.Context) convert.Options {
	opts := convert.DefaultOptions()
	if c.DefaultQuery("normalize", "false") == "true" {
		opts.NormalizePedal = true
	}
	if v := c.Query("transpose"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Transpose = n
		}
	}
	return opts
}

// conversionStatus maps invalid input to 400 and everything else to
// 500; a schema violation is the client's fault, not ours.
func conversionStatus(err error) int {
	var verr *score.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func sendFile(c *gin.Context, data []byte, inputName, outputExt, contentType string) {
	outputName := strings.TrimSuffix(inputName, filepath.Ext(inputName))
	if outputName == "" {
		outputName = "converted"
	}
	outputName += outputExt

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", outputName))
	c.Data(http.StatusOK, contentType, data)
}
