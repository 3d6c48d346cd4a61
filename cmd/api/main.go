package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"awardflow/audit"
	"awardflow/casefile"
	"awardflow/db"
	"awardflow/draft"
	"awardflow/draftgen"
	"awardflow/escalation"
	"awardflow/finalize"
	"awardflow/identity"
	"awardflow/notify"
	"awardflow/render"
	"awardflow/signing"
	"awardflow/storage"

	"cloud.google.com/go/pubsub"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

func main() {
	ctx := context.Background()

	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo, jwtSecret)

	caseRepo := casefile.NewRepository(pool)
	draftRepo := draft.NewRepository(pool)
	revisionStore := draft.NewRevisionStore(pool)
	escalationRepo := escalation.NewRepository(pool)
	awardRepo := finalize.NewAwardRepository(pool)

	auditStore := audit.NewPGStore(pool)
	chain := audit.NewChain(pool, auditStore)
	reporter := audit.NewReporter(auditStore, identityRepo)

	var notifier notify.Notifier = notify.NewLogNotifier()
	if project := os.Getenv("PUBSUB_PROJECT"); project != "" {
		psClient, err := pubsub.NewClient(ctx, project)
		if err != nil {
			log.Fatalf("bootstrap pubsub client: %v", err)
		}
		defer psClient.Close()
		notifier = notify.NewPubSubNotifier(psClient, envOr("PUBSUB_TOPIC", "notifications"))
	}

	assignor := escalation.NewAssignor(escalationRepo, identityRepo, notifier)
	reviewService := draft.NewService(pool, draftRepo, revisionStore, caseRepo, chain, escalationRepo, assignor)

	var timestamper signing.Timestamper
	if tsaURL := os.Getenv("TSA_URL"); tsaURL != "" {
		timestamper = signing.NewTSAClient(tsaURL, nil)
	}

	docStore := storage.NewFSStore(
		envOr("DOCUMENT_DIR", "./documents"),
		envOr("DOCUMENT_BASE_URL", "http://localhost:8080/documents"),
	)

	finalizeService := finalize.NewService(pool, awardRepo, draftRepo, caseRepo, identityRepo,
		signing.NewLocalProvider(), timestamper, render.NewTextRenderer(), docStore, notifier, chain)

	var generator *draftgen.Ingestor
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			log.Fatalf("bootstrap genai client: %v", err)
		}
		defer genaiClient.Close()
		gemini := draftgen.NewGeminiGenerator(genaiClient, envOr("GEMINI_MODEL", "gemini-1.5-pro"))
		generator = draftgen.NewIngestor(gemini, draftRepo, revisionStore, chain)
	}

	server := &Server{
		identityService: identityService,
		reviewService:   reviewService,
		finalizeService: finalizeService,
		reporter:        reporter,
		drafts:          draftRepo,
		revisions:       revisionStore,
	}
	if generator != nil {
		server.generator = generator
	}

	addr := envOr("LISTEN_ADDR", ":8080")
	log.Printf("api listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, server.Routes()))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
