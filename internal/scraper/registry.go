package scraper

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"review-insights-platform/models"
)

// Mode tells whether an invocation scrapes one product or a search.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeSearch Mode = "search"
)

// Executable describes the scraper scripts of one platform and how their
// positional arguments are built.
type Executable struct {
	DirectScript string
	SearchScript string
	DirectArgs   func(models.DirectURLRequest) []string
	SearchArgs   func(models.SearchTermRequest) []string
	// IsProductURL, when set, decides whether a direct URL can be scraped as a
	// single product. Other URLs are searched with the request's fallback
	// term, or the URL text when there is none.
	IsProductURL func(url string) bool
}

// Invocation is a fully resolved scraper command line.
type Invocation struct {
	Platform   models.Platform
	Mode       Mode
	Script     string
	Executable string
	Args       []string
	SearchTerm string
}

// Registry maps platforms to their scraper executables.
type Registry struct {
	// Interpreter runs each script; empty means scripts are executed directly.
	Interpreter string
	ScriptsDir  string
	executables map[models.Platform]Executable
}

// NewRegistry returns a registry populated with the built-in platforms.
func NewRegistry(interpreter, scriptsDir string) *Registry {
	r := &Registry{
		Interpreter: interpreter,
		ScriptsDir:  scriptsDir,
		executables: make(map[models.Platform]Executable),
	}
	for platform, exe := range defaultExecutables() {
		r.Register(platform, exe)
	}
	return r
}

// Register adds or replaces a platform's executable.
func (r *Registry) Register(platform models.Platform, exe Executable) {
	r.executables[platform] = exe
}

// Lookup returns a platform's executable.
func (r *Registry) Lookup(platform models.Platform) (Executable, bool) {
	exe, ok := r.executables[platform]
	return exe, ok
}

// Resolve turns a validated request into the command line to run.
func (r *Registry) Resolve(req models.ScrapeRequest) (Invocation, error) {
	if err := req.Validate(); err != nil {
		return Invocation{}, err
	}
	platform, _ := models.ParsePlatform(string(req.Platform))
	exe, ok := r.executables[platform]
	if !ok {
		return Invocation{}, &models.ValidationError{Field: "platform", Message: models.UnsupportedPlatformMessage()}
	}

	inv := Invocation{Platform: platform}
	var buildArgs func() []string

	switch {
	case req.Direct != nil && (exe.IsProductURL == nil || exe.IsProductURL(req.Direct.URL)):
		inv.Mode = ModeDirect
		inv.Script = exe.DirectScript
		direct := *req.Direct
		buildArgs = func() []string { return exe.DirectArgs(direct) }
	case req.Direct != nil:
		inv.Mode = ModeSearch
		inv.Script = exe.SearchScript
		inv.SearchTerm = req.Direct.FallbackTerm
		if inv.SearchTerm == "" {
			inv.SearchTerm = req.Direct.URL
		}
		buildArgs = func() []string { return exe.SearchArgs(models.SearchTermRequest{Term: inv.SearchTerm}) }
	default:
		inv.Mode = ModeSearch
		inv.Script = exe.SearchScript
		inv.SearchTerm = req.Search.Term
		search := *req.Search
		buildArgs = func() []string { return exe.SearchArgs(search) }
	}

	if inv.Script == "" {
		return Invocation{}, &models.ValidationError{
			Field:   "searchType",
			Message: fmt.Sprintf("%s does not support %s scraping", platform, inv.Mode),
		}
	}
	scriptArgs := buildArgs()

	scriptPath := filepath.Join(r.ScriptsDir, inv.Script)
	if r.Interpreter == "" {
		inv.Executable = scriptPath
		inv.Args = scriptArgs
	} else {
		inv.Executable = r.Interpreter
		inv.Args = append([]string{scriptPath}, scriptArgs...)
	}
	return inv, nil
}

func defaultExecutables() map[models.Platform]Executable {
	return map[models.Platform]Executable{
		models.PlatformTrendyol: {
			DirectScript: "trendyol_scraper.py",
			SearchScript: "trendyol_search_scraper.py",
			DirectArgs:   directArgs(30),
			SearchArgs: func(s models.SearchTermRequest) []string {
				return []string{s.Term, itoa(orDefault(s.MaxProducts, 5))}
			},
		},
		models.PlatformHepsiburada: {
			DirectScript: "hepsiburada_scraper.py",
			SearchScript: "hepsiburada_search_scraper.py",
			DirectArgs:   directArgs(10),
			SearchArgs:   searchArgs(5, 6),
		},
		models.PlatformN11: {
			DirectScript: "n11_scraper.py",
			SearchScript: "n11_search_scraper.py",
			DirectArgs:   directArgs(8),
			SearchArgs:   searchArgs(5, 8),
		},
		models.PlatformAliExpress: {
			DirectScript: "aliexpress_scraper.py",
			SearchScript: "aliexpress_search_scraper.py",
			DirectArgs:   directArgs(10),
			SearchArgs:   searchArgs(5, 10),
		},
		models.PlatformAmazon: {
			DirectScript: "amazon_scraper.py",
			SearchScript: "amazon_search_scraper.py",
			DirectArgs: func(d models.DirectURLRequest) []string {
				return []string{d.URL, itoa(orDefault(d.MaxPages, 10)), "true"}
			},
			SearchArgs: searchArgs(5, 3),
			IsProductURL: func(url string) bool {
				return strings.Contains(url, "amazon.com.tr/dp/")
			},
		},
	}
}

func directArgs(defaultPages int) func(models.DirectURLRequest) []string {
	return func(d models.DirectURLRequest) []string {
		return []string{d.URL, itoa(orDefault(d.MaxPages, defaultPages))}
	}
}

func searchArgs(defaultProducts, defaultDepth int) func(models.SearchTermRequest) []string {
	return func(s models.SearchTermRequest) []string {
		return []string{
			s.Term,
			itoa(orDefault(s.MaxProducts, defaultProducts)),
			itoa(orDefault(s.DepthPerProduct, defaultDepth)),
		}
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
