package api

import (
	"github.com/fyerfyer/pdf-vector-ingest/api/handler"
	"github.com/fyerfyer/pdf-vector-ingest/api/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(ingestHandler *handler.IngestHandler) *gin.Engine {
	// 创建默认的Gin路由引擎
	router := gin.New()
	router.Use(gin.Recovery())

	// 应用全局中间件
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.SetTraceID())

	// 创建API分组
	api := router.Group("/api")
	{
		// 摄取API
		ingestGroup := api.Group("/ingest")
		{
			// 触发摄取（同步或异步） - POST /api/ingest
			ingestGroup.POST("", ingestHandler.Ingest)

			// 上传文件并摄取 - POST /api/ingest/upload
			ingestGroup.POST("/upload", ingestHandler.Upload)

			// 获取摄取状态 - GET /api/ingest/:id/status
			ingestGroup.GET("/:id/status", ingestHandler.GetStatus)

			// 获取摄取记录列表 - GET /api/ingest
			ingestGroup.GET("", ingestHandler.List)

			// 删除摄取记录 - DELETE /api/ingest/:id
			ingestGroup.DELETE("/:id", ingestHandler.Delete)
		}

		// 命名空间推导API - GET /api/namespace?file_key=
		api.GET("/namespace", ingestHandler.Namespace)

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// Cors 跨域资源共享中间件
// 如果需要支持跨域请求，可以启用此中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
