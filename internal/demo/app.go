package demo

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/GoCodeAlone/webmod"
)

// Options tune the demo.
type Options struct {
	Salutation   string        `yaml:"salutation" toml:"salutation"`
	AdminToken   string        `yaml:"admin_token" toml:"admin_token"`
	TickInterval time.Duration `yaml:"tick_interval" toml:"tick_interval"`
}

// HeaderAdminToken carries the admin token.
const HeaderAdminToken = "X-Admin-Token"

// maxTicks bounds the ticker stream.
const maxTicks = 100

// NewModule builds the demo module tree.
func NewModule(logger webmod.Logger, opts Options) *webmod.Module {
	if opts.Salutation == "" {
		opts.Salutation = "Hello"
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if logger == nil {
		logger = webmod.NopLogger{}
	}

	return &webmod.Module{
		Name:        "demo",
		Middlewares: []webmod.Middleware{accessLog(logger), poweredBy},
		Providers: []webmod.Provider{
			webmod.Provide(func(c *webmod.Container) (*Greeter, error) {
				return &Greeter{Salutation: opts.Salutation, store: webmod.MustGet[*CounterStore](c)}, nil
			}, webmod.TypeOf[*CounterStore]()),
			webmod.Provide(func(*webmod.Container) (*CounterStore, error) {
				return NewCounterStore(), nil
			}),
			webmod.Value(&AdminSettings{Token: opts.AdminToken}),
		},
		Modules: []*webmod.Module{
			greetingModule(),
			counterModule(),
			uploadModule(),
			eventsModule(opts.TickInterval),
			adminModule(),
		},
	}
}

func greetingModule() *webmod.Module {
	return &webmod.Module{
		Name: "greeting",
		Controllers: []*webmod.Controller{{
			Prefix: "/hello",
			Routes: []webmod.Route{
				{Method: http.MethodGet, Path: "/", Handler: greet},
				{Method: http.MethodGet, Path: "/:name", Handler: greet},
			},
		}},
	}
}

func greet(req *webmod.Request, res *webmod.Response) *webmod.Response {
	greeter, ok := webmod.GetProvider[*Greeter](req)
	if !ok {
		return res.Text(http.StatusInternalServerError, "greeter unavailable")
	}
	name := req.Param("name")
	if name == "" {
		name = req.QueryValue("name")
	}
	if name == "" {
		name = "world"
	}
	return res.JSON(http.StatusOK, map[string]string{"message": greeter.Greet(name)})
}

func counterModule() *webmod.Module {
	return &webmod.Module{
		Name: "counters",
		Controllers: []*webmod.Controller{{
			Prefix: "/counters",
			Routes: []webmod.Route{
				{Method: http.MethodGet, Path: "/", Handler: listCounters},
				{Method: http.MethodGet, Path: "/:name", Handler: getCounter},
				{Method: http.MethodPost, Path: "/:name", Handler: incrCounter},
			},
		}},
	}
}

func listCounters(req *webmod.Request, res *webmod.Response) *webmod.Response {
	store := webmod.MustGet[*CounterStore](req.Container())
	return res.JSON(http.StatusOK, store.Snapshot())
}

func getCounter(req *webmod.Request, res *webmod.Response) *webmod.Response {
	store := webmod.MustGet[*CounterStore](req.Container())
	name := req.Param("name")
	return res.JSON(http.StatusOK, map[string]any{"name": name, "value": store.Get(name)})
}

func incrCounter(req *webmod.Request, res *webmod.Response) *webmod.Response {
	store := webmod.MustGet[*CounterStore](req.Container())
	name := req.Param("name")
	return res.JSON(http.StatusOK, map[string]any{"name": name, "value": store.Incr(name)})
}

type uploadedFile struct {
	Field       string `json:"field"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

func uploadModule() *webmod.Module {
	return &webmod.Module{
		Name: "upload",
		Controllers: []*webmod.Controller{{
			Prefix: "/upload",
			Routes: []webmod.Route{{
				Method: http.MethodPost,
				Path:   "/",
				Handler: func(req *webmod.Request, res *webmod.Response) *webmod.Response {
					files := make([]uploadedFile, 0, len(req.Files))
					for _, f := range req.Files {
						files = append(files, uploadedFile{
							Field:       f.Name,
							Filename:    f.Filename,
							ContentType: f.ContentType,
							Size:        len(f.Data),
						})
					}
					return res.JSON(http.StatusOK, map[string]any{"files": files, "fields": req.Form})
				},
			}},
		}},
	}
}

func eventsModule(interval time.Duration) *webmod.Module {
	return &webmod.Module{
		Name: "events",
		Controllers: []*webmod.Controller{{
			Prefix: "/events",
			Routes: []webmod.Route{{
				Method: http.MethodGet,
				Path:   "/ticks",
				Handler: func(req *webmod.Request, res *webmod.Response) *webmod.Response {
					count, err := strconv.Atoi(req.QueryValue("count"))
					if err != nil || count <= 0 || count > maxTicks {
						count = 5
					}
					return res.Stream(ticker(count, interval))
				},
			}},
		}},
	}
}

// ticker sends count "tick" events, one per interval.
func ticker(count int, interval time.Duration) webmod.StreamFunc {
	return func(ctx context.Context, s *webmod.Stream) error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for i := 1; i <= count; i++ {
			if err := s.SendEvent(webmod.Event{Name: "tick", Data: strconv.Itoa(i)}); err != nil {
				return err
			}
			if i == count {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
		return s.SendEvent(webmod.Event{Name: "done"})
	}
}

func adminModule() *webmod.Module {
	return &webmod.Module{
		Name: "admin",
		Controllers: []*webmod.Controller{{
			Prefix:      "/admin",
			Middlewares: []webmod.Middleware{requireAdmin},
			Routes: []webmod.Route{{
				Method: http.MethodGet,
				Path:   "/stats",
				Handler: func(req *webmod.Request, res *webmod.Response) *webmod.Response {
					store := webmod.MustGet[*CounterStore](req.Container())
					return res.JSON(http.StatusOK, map[string]any{
						"counters": store.Names(),
						"client":   req.Meta.ClientIP,
					})
				},
			}},
		}},
	}
}
