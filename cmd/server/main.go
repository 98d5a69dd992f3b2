package main

import (
	"log"

	"followup-gateway/internal/activity"
	"followup-gateway/internal/api"
	"followup-gateway/internal/broadcast"
	"followup-gateway/internal/config"
	"followup-gateway/internal/contacts"
	"followup-gateway/internal/database"
	"followup-gateway/internal/flow"
	"followup-gateway/internal/followup"
	"followup-gateway/internal/scheduler"
	"followup-gateway/internal/waha"
	"followup-gateway/internal/webhook"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.Init(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	wahaClient := waha.NewClient(cfg)
	flowStore := flow.NewStore(db)
	contactStore := contacts.NewStore(db)
	activityLog := activity.NewLog(db)
	engine := followup.NewEngine(db, wahaClient, flowStore, contactStore, activityLog, cfg)
	queue := broadcast.NewQueue(db, wahaClient, flowStore, activityLog, cfg)

	if err := flowStore.EnsureDefaults(); err != nil {
		log.Printf("Warning: could not seed default flow config: %v", err)
	}

	sched := scheduler.New(engine, flowStore)
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	webhookHandler := webhook.NewHandler(engine)
	sessionHandler := api.NewSessionHandler(wahaClient, cfg)
	journeyHandler := api.NewJourneyHandler(engine, contactStore)
	flowHandler := api.NewFlowHandler(flowStore)
	broadcastHandler := api.NewBroadcastHandler(queue, contactStore)
	contactHandler := api.NewContactHandler(contactStore, activityLog)

	// Webhook Routes
	r.POST("/webhook", webhookHandler.Receive)
	r.POST("/webhook/test", webhookHandler.Test)

	apiGroup := r.Group("/api")
	{
		// Session Routes
		sessionGroup := apiGroup.Group("/session")
		{
			sessionGroup.GET("/status", sessionHandler.Status)
			sessionGroup.POST("/start", sessionHandler.Start)
			sessionGroup.POST("/bootstrap", sessionHandler.Bootstrap)
			sessionGroup.POST("/stop", sessionHandler.Stop)
			sessionGroup.POST("/restart", sessionHandler.Restart)
			sessionGroup.POST("/logout", sessionHandler.Logout)
			sessionGroup.GET("/qr", sessionHandler.QR)
			sessionGroup.GET("/server", sessionHandler.ServerStatus)
		}

		// Journey Routes
		apiGroup.POST("/journeys/start", journeyHandler.Start)
		apiGroup.GET("/journeys", journeyHandler.List)
		apiGroup.GET("/journeys/contact/:contactId", journeyHandler.GetByContact)
		apiGroup.POST("/journeys/contact/:contactId/stop", journeyHandler.StopByContact)
		apiGroup.POST("/journeys/:id/stop", journeyHandler.StopByID)
		apiGroup.POST("/journeys/stop-all", journeyHandler.StopAll)

		// Flow Configuration Routes
		apiGroup.GET("/flow", flowHandler.Get)
		apiGroup.PUT("/flow", flowHandler.Update)
		apiGroup.POST("/flow/reset", flowHandler.Reset)

		// Broadcast Routes
		apiGroup.POST("/broadcasts/custom", broadcastHandler.Custom)
		apiGroup.POST("/broadcasts/sunday-reminder", broadcastHandler.SundayReminder)
		apiGroup.POST("/broadcasts/event", broadcastHandler.EventUpdate)
		apiGroup.POST("/broadcasts/emergency", broadcastHandler.Emergency)
		apiGroup.POST("/broadcasts/absent-reminders", broadcastHandler.AbsentReminders)
		apiGroup.POST("/broadcasts/manual", broadcastHandler.Manual)
		apiGroup.GET("/broadcasts", broadcastHandler.History)
		apiGroup.GET("/broadcasts/:id", broadcastHandler.Detail)
		apiGroup.POST("/broadcasts/:id/cancel", broadcastHandler.Cancel)

		// Contact Routes
		apiGroup.GET("/contacts/counts", contactHandler.Counts)
		apiGroup.PUT("/contacts/:contactId/consent", contactHandler.UpdateConsent)
		apiGroup.GET("/contacts/:contactId/messages", contactHandler.History)
	}

	if cfg.WebhookBase != "" {
		go func() {
			state, err := wahaClient.BootstrapDefaultSession(cfg.WebhookBase + "/webhook")
			if err != nil {
				log.Printf("Warning: session bootstrap failed: %v", err)
				return
			}
			log.Printf("WAHA session %s status: %s", wahaClient.Session, state.Status)
		}()
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
