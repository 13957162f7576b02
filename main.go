package main

import (
	"context"
	"flag"
	"iconboard/assets"
	"iconboard/handlers/api/canvases"
	"iconboard/handlers/api/objects"
	"iconboard/handlers/auth"
	"iconboard/handlers/websocket"
	authMiddleware "iconboard/middleware"
	"iconboard/stores"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func setupRouter(store stores.Store, assetSvc *assets.Service) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-CSRF-Token", "Token", "session", "Origin", "Host", "Connection", "Accept-Encoding", "Accept-Language", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api/v2", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.AuthJWT)
			r.Route("/canvases", func(r chi.Router) {
				r.Get("/", canvases.HandleList(store))
				r.Route("/{canvasID}", func(r chi.Router) {
					r.Get("/", canvases.HandleGet(store))
					r.Put("/", canvases.HandleSave(store))
					r.Delete("/", canvases.HandleDelete(store))
					r.Route("/objects", func(r chi.Router) {
						r.Get("/", objects.HandleList(store))
						r.Put("/", objects.HandleSave(store, assetSvc))
						r.Post("/flatten", objects.HandleFlatten(store))
						r.Route("/{objectID}", func(r chi.Router) {
							r.Delete("/", objects.HandleDelete(store))
							r.Post("/toggle-lock", objects.HandleToggleLock(store))
						})
					})
				})
			})
		})

		r.Get("/rooms", func(w http.ResponseWriter, req *http.Request) {
			render.JSON(w, req, websocket.GetActiveRooms())
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", auth.HandleLogin)
		r.Get("/callback", auth.HandleCallback)
	})

	// Assets written by the filesystem blob store are served straight from
	// disk under the same URLs the store hands out.
	if os.Getenv("ASSET_STORAGE_TYPE") == "filesystem" {
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data"
		}
		assetDir := filepath.Join(basePath, "assets")
		fileServer := http.StripPrefix("/assets/", http.FileServer(http.Dir(assetDir)))
		r.Get("/assets/*", fileServer.ServeHTTP)
	}

	return r
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	auth.InitAuth()
	store := stores.GetStore()
	assetSvc := assets.NewService(stores.GetAssetStore())

	r := setupRouter(store, assetSvc)

	ioo := websocket.SetupSocketIO()
	r.Mount("/socket.io/", ioo.ServeHandler(nil))

	srv := &http.Server{
		Addr:    *listenAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithField("addr", *listenAddress).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logrus.Info("shutting down")
		ioo.Close(nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logrus.WithField("event", "shutdown").Fatal(err)
	}
}
