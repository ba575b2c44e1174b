package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/vantagevoice/callscope/internal/config"
	"github.com/vantagevoice/callscope/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, webhookCfg config.Webhook) {
	// Telephony provider callbacks (outside the API group, token-verified).
	r.Route("/api/v1/callbacks", func(r chi.Router) {
		r.With(middleware.WebhookToken(webhookCfg.Token, "X-Webhook-Token")).
			Post("/telephony", h.TelephonyStatusCallback)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/calls", h.DispatchCall)

		r.Route("/calls/{callID}", func(r chi.Router) {
			r.Use(middleware.CallID)

			r.Post("/connected", h.CallConnected)
			r.Post("/ended", h.CallEnded)
			r.Post("/transcript/live", h.LiveTranscript)
			r.Post("/transcript/complete", h.CompleteTranscript)

			r.Post("/usage/transcription", h.TranscriptionUsage)
			r.Post("/usage/synthesis", h.SynthesisUsage)
			r.Post("/usage/llm", h.LLMUsage)

			r.Get("/usage", h.GetUsage)
			r.Get("/cost", h.GetCost)
		})

		r.Get("/records", h.ListRecords)
		r.Get("/records/{callID}", h.GetRecord)
	})
}
