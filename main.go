// srcindex scans C and C++ sources for serialization and translation
// markers. It generates nlohmann::json bindings for every SERIALIZABLE
// type and writes a catalog of the translatable strings.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
	"github.com/joho/godotenv"
	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/srcindex/internal/catalog"
	"github.com/phobologic/srcindex/internal/codegen"
	"github.com/phobologic/srcindex/internal/decl"
	"github.com/phobologic/srcindex/internal/diag"
	"github.com/phobologic/srcindex/internal/discover"
	"github.com/phobologic/srcindex/internal/emit"
	"github.com/phobologic/srcindex/internal/extract"
	"github.com/phobologic/srcindex/internal/lang"
	"github.com/phobologic/srcindex/internal/log"
	"github.com/phobologic/srcindex/internal/model"
	"github.com/phobologic/srcindex/pkg/tr"
)

var version = "dev"

const defaultMaxFileSize = 1_000_000 // 1 MB

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// CLI is the command line. Every flag can also be set from a
// configuration file, keyed by the flag name with underscores.
type CLI struct {
	Config   string `help:"Configuration file (JSON, YAML or TOML)." env:"SRCINDEX_CONFIG" placeholder:"FILE"`
	Version  bool   `short:"V" help:"Show version and exit."`
	LogLevel string `help:"Log level: trace, debug, info, warn or error." default:"info" enum:"trace,debug,info,warn,error" env:"SRCINDEX_LOG_LEVEL"`
	LogFile  string `help:"Also write logs to this file." env:"SRCINDEX_LOG_FILE" placeholder:"FILE"`

	Generate GenerateCmd `cmd:"" default:"withargs" help:"Generate serialization units and the translation catalog (default)."`
	Init     InitCmd     `cmd:"" help:"Write the header declaring the markers."`
	Format   FormatCmd   `cmd:"" help:"Substitute {name} placeholders in a message."`
}

// console carries the command's output streams.
type console struct {
	Out io.Writer
	Err io.Writer
}

// exitCode is raised by kong's exit hook (after --help) so run can return
// instead of terminating the process.
type exitCode int

func run(args []string, stdout, stderr io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			code, ok := r.(exitCode)
			if !ok {
				panic(r)
			}
			if code != 0 {
				err = fmt.Errorf("exit status %d", code)
			}
		}
	}()

	jsonPaths, yamlPaths, tomlPaths := configCandidatePaths(findUserConfig(args))

	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("srcindex"),
		kong.Description("Generate nlohmann::json bindings and a translation catalog from annotated C/C++ sources."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { panic(exitCode(code)) }),
		// flags and env override config values
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)
	if err != nil {
		return err
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	if cli.Version {
		_, _ = fmt.Fprintf(stdout, "srcindex %s\n", version)
		return nil
	}

	logger, closeFiles, err := log.SetupLogger(cli.LogLevel, cli.LogFile, stderr, stderr)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}
	defer func() {
		for _, c := range closeFiles {
			_ = c.Close()
		}
	}()

	ctx.Bind(logger, &console{Out: stdout, Err: stderr})
	return ctx.Run()
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("SRCINDEX_CONFIG")
}

// configCandidatePaths routes a user config file to the loader matching
// its extension, then adds srcindex.{json,yaml,yml,toml} from the working
// directory. Missing files are skipped by kong.
func configCandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	if userPath != "" {
		switch filepath.Ext(userPath) {
		case ".yaml", ".yml":
			yamlPaths = append(yamlPaths, userPath)
		case ".toml":
			tomlPaths = append(tomlPaths, userPath)
		default:
			jsonPaths = append(jsonPaths, userPath)
		}
	}
	jsonPaths = append(jsonPaths, "srcindex.json")
	yamlPaths = append(yamlPaths, "srcindex.yaml", "srcindex.yml")
	tomlPaths = append(tomlPaths, "srcindex.toml")
	return jsonPaths, yamlPaths, tomlPaths
}

// MarkerFlags names the recognized markers.
type MarkerFlags struct {
	SerializableMarker string `help:"Marker naming a serializable type." default:"SERIALIZABLE" env:"SRCINDEX_SERIALIZABLE_MARKER"`
	FieldMarker        string `help:"Marker naming a serialized field." default:"FIELD" env:"SRCINDEX_FIELD_MARKER"`
	TranslateMarker    string `help:"Translatable-string call." default:"_TR" env:"SRCINDEX_TRANSLATE_MARKER"`
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (m MarkerFlags) markers() (extract.Markers, error) {
	names := []string{m.SerializableMarker, m.FieldMarker, m.TranslateMarker}
	seen := make(map[string]bool)
	for _, n := range names {
		if !identifier.MatchString(n) {
			return extract.Markers{}, fmt.Errorf("marker %q is not an identifier", n)
		}
		if seen[n] {
			return extract.Markers{}, fmt.Errorf("marker %q used twice", n)
		}
		seen[n] = true
	}
	return extract.Markers{Serializable: m.SerializableMarker, Field: m.FieldMarker, Translate: m.TranslateMarker}, nil
}

// GenerateCmd scans the corpus and writes every output of a run.
type GenerateCmd struct {
	MarkerFlags `embed:""`

	Paths         []string `arg:"" optional:"" help:"Files or directories to scan (default: current directory)."`
	OutDir        string   `short:"d" help:"Directory receiving the generated units." default:"generated" env:"SRCINDEX_OUT_DIR"`
	Prefix        string   `help:"Prefix of generated unit names." default:"serialize_" env:"SRCINDEX_PREFIX"`
	Suffix        string   `help:"Suffix of generated unit names." default:".cpp" env:"SRCINDEX_SUFFIX"`
	Include       []string `short:"I" help:"Include roots the generated #include is made relative to." env:"SRCINDEX_INCLUDE"`
	Catalog       string   `help:"Translation catalog path; empty disables it." default:"translations.yaml" env:"SRCINDEX_CATALOG"`
	CatalogFormat string   `help:"Catalog format: auto (by extension), yaml, toml, json or toon." default:"auto" env:"SRCINDEX_CATALOG_FORMAT"`
	JSON          bool     `name:"json" help:"Write each unit's descriptor model as JSON instead of C++." env:"SRCINDEX_JSON"`
	PublicOnly    bool     `help:"Report protected and private members as unsupported." default:"true" negatable:"" env:"SRCINDEX_PUBLIC_ONLY"`
	Jobs          int      `short:"j" help:"Parallel workers (default: GOMAXPROCS)." env:"SRCINDEX_JOBS"`
	MaxFileSize   int      `help:"Skip files larger than this many bytes." default:"1000000" env:"SRCINDEX_MAX_FILE_SIZE"`
	Langs         []string `short:"l" help:"Languages scanned when expanding directories (c, cpp)." env:"SRCINDEX_LANGS"`
}

// Run executes one full, deterministic rebuild of the outputs.
func (g *GenerateCmd) Run(logger *slog.Logger, con *console) error {
	markers, err := g.markers()
	if err != nil {
		return err
	}
	format, err := emit.ParseFormat(g.CatalogFormat)
	if err != nil {
		return err
	}
	for _, name := range g.Langs {
		if _, ok := lang.Languages[name]; !ok {
			return fmt.Errorf("unsupported language %q", name)
		}
	}
	jobs := g.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	maxFileSize := g.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	paths := g.Paths
	if len(paths) == 0 {
		paths = []string{"."}
	}

	// Discover files
	files, err := collectFiles(paths, g.Langs, g.OutDir, logger)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no source files found")
	}

	// Filter by size
	files = filterBySize(files, maxFileSize, logger)
	if len(files) == 0 {
		return errors.New("no source files found (all exceeded size limit)")
	}

	// Scan files concurrently, merge in corpus order
	results := parseFilesConcurrent(files, markers, jobs, logger)
	if len(results) == 0 {
		return errors.New("no source file could be read")
	}

	cat := catalog.New()
	report := &diag.Report{}
	for _, r := range results {
		report.Add(r.diags...)
		if r.model != nil {
			report.Add(cat.Add(r.model)...)
		}
	}

	types := cat.Types()
	units, diags := codegen.Plan(types, codegen.Options{
		Prefix:       g.Prefix,
		Suffix:       g.Suffix,
		IncludeRoots: g.Include,
		PublicOnly:   g.PublicOnly,
	})
	report.Add(diags...)
	for _, cycle := range codegen.Cycles(units) {
		logger.Debug("units reference each other", "units", strings.Join(cycle, ", "))
	}

	written, err := writeUnits(units, g.OutDir, g.JSON, jobs, logger)
	if err != nil {
		return err
	}

	ext := g.Suffix
	if g.JSON {
		ext = ".json"
	}
	removed, err := removeStaleUnits(units, g.OutDir, g.Prefix, ext, g.JSON)
	if err != nil {
		return err
	}
	if removed > 0 {
		logger.Info("removed stale units", "dir", g.OutDir, "count", removed)
	}

	records := cat.Records()
	if g.Catalog != "" {
		f := emit.Resolve(format, g.Catalog)
		data, err := emit.Marshal(f, records)
		if err != nil {
			return err
		}
		changed, err := writeIfChanged(g.Catalog, data)
		if err != nil {
			return fmt.Errorf("writing catalog: %w", err)
		}
		logger.Info("catalog", "path", g.Catalog, "format", f, "entries", len(records), "changed", changed)
	}

	for _, d := range report.Entries() {
		logger.Debug(diag.Summary(d), "at", d.Pos().String(), "kind", d.Kind())
	}
	report.Print(con.Err)

	_, _ = fmt.Fprintf(con.Out, "%d files, %d types, %d units (%d written), %d translation records, %d warnings\n",
		len(results), len(types), len(units), written, len(records), report.Warnings())
	return nil
}

// collectFiles expands the path arguments into the sorted corpus.
// Directories are walked for registered extensions, skipping the output
// directory; files named explicitly are scanned whatever their extension.
func collectFiles(paths, langs []string, outDir string, logger *slog.Logger) ([]discover.FileEntry, error) {
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("resolving output directory: %w", err)
	}

	seen := make(map[string]bool)
	var files []discover.FileEntry
	add := func(e discover.FileEntry) {
		e.Path = filepath.Clean(e.Path)
		if seen[e.Path] {
			return
		}
		seen[e.Path] = true
		files = append(files, e)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			logger.Warn("skipping path", "path", p, "error", err)
			continue
		}
		if !info.IsDir() {
			add(discover.FileEntry{Path: p, Language: discover.LanguageOf(p)})
			continue
		}

		var exclude []string
		if absRoot, err := filepath.Abs(p); err == nil {
			if rel, err := filepath.Rel(absRoot, absOut); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
				exclude = append(exclude, rel)
			}
		}
		entries, err := discover.Files(p, langs, exclude...)
		if err != nil {
			return nil, fmt.Errorf("discovering files in %s: %w", p, err)
		}
		for _, e := range entries {
			e.Path = filepath.Join(p, e.Path)
			add(e)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func filterBySize(files []discover.FileEntry, maxSize int, logger *slog.Logger) []discover.FileEntry {
	var kept []discover.FileEntry
	for _, f := range files {
		fi, err := os.Stat(f.Path)
		if err != nil {
			kept = append(kept, f) // keep if can't stat
			continue
		}
		if fi.Size() > int64(maxSize) {
			logger.Warn("file skipped", "file", f.Path, "size", fi.Size(), "limit", maxSize)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// fileResult is what one file contributes to the run. model is nil when
// a syntax error aborted the file.
type fileResult struct {
	path  string
	model *model.FileModel
	diags []diag.Located
}

func parseFilesConcurrent(files []discover.FileEntry, markers extract.Markers, jobs int, logger *slog.Logger) []fileResult {
	type result struct {
		index int
		res   fileResult
	}

	numWorkers := jobs
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make(chan result, len(files))

	var wg sync.WaitGroup

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Each goroutine gets its own parser
			parsers := make(map[string]*parserPair)

			for idx := range work {
				f := files[idx]
				source, err := os.ReadFile(f.Path)
				if err != nil {
					logger.Warn("failed to read", "file", f.Path, "error", err)
					continue
				}

				name := filepath.ToSlash(f.Path)
				fm, diags := extract.File(name, source, markers)
				if fm != nil {
					pp, err := parserFor(parsers, f.Language)
					if err != nil {
						logger.Warn("failed to compile declaration query", "language", f.Language, "error", err)
					} else {
						fm.Decls = decl.Extract(pp.lang, pp.parser, pp.query, source, name)
					}
					logger.Debug("scanned", "file", name, "types", len(fm.Types), "fields", len(fm.Fields),
						"translations", len(fm.Translations), "declarations", len(fm.Decls))
				}

				results <- result{index: idx, res: fileResult{path: name, model: fm, diags: diags}}
			}
		}()
	}

	for i := range files {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results in original order
	indexed := make([]fileResult, len(files))
	valid := make([]bool, len(files))
	for r := range results {
		indexed[r.index] = r.res
		valid[r.index] = true
	}

	var out []fileResult
	for i, v := range valid {
		if v {
			out = append(out, indexed[i])
		}
	}
	return out
}

type parserPair struct {
	lang   *lang.Language
	parser *sitter.Parser
	query  *sitter.Query
}

func parserFor(parsers map[string]*parserPair, language string) (*parserPair, error) {
	if pp, ok := parsers[language]; ok {
		return pp, nil
	}
	l := lang.Languages[language]
	if l == nil {
		return nil, fmt.Errorf("unsupported language %q", language)
	}
	q, err := l.GetDeclQuery()
	if err != nil {
		return nil, err
	}
	pp := &parserPair{lang: l, parser: l.NewParser(), query: q}
	parsers[language] = pp
	return pp, nil
}

// writeUnits renders the units (or their JSON models) in parallel and
// returns how many files changed on disk.
func writeUnits(units []*codegen.Unit, outDir string, asJSON bool, jobs int, logger *slog.Logger) (int, error) {
	var g errgroup.Group
	g.SetLimit(jobs)
	var written atomic.Int64

	for _, u := range units {
		g.Go(func() error {
			var (
				data []byte
				name string
				err  error
			)
			if asJSON {
				data, err = codegen.Export(u)
				name = u.ModelOutput
			} else {
				data, err = codegen.Render(u)
				name = u.Output
			}
			if err != nil {
				return err
			}

			path := filepath.Join(outDir, filepath.FromSlash(name))
			changed, err := writeIfChanged(path, data)
			if err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			if changed {
				written.Add(1)
			}
			logger.Debug("unit", "source", u.Source, "output", path, "types", len(u.Types), "changed", changed)
			return nil
		})
	}

	err := g.Wait()
	return int(written.Load()), err
}

// writeIfChanged leaves files whose content is already current untouched,
// so build tools do not see a regenerated file as modified.
func writeIfChanged(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// removeStaleUnits deletes generated files left in outDir by earlier runs
// whose source no longer declares a serializable type. Only files named
// prefix*ext that carry the generated banner (or unit model) are touched.
func removeStaleUnits(units []*codegen.Unit, outDir, prefix, ext string, asJSON bool) (int, error) {
	keep := make(map[string]bool, len(units))
	for _, u := range units {
		name := u.Output
		if asJSON {
			name = u.ModelOutput
		}
		keep[filepath.Join(outDir, filepath.FromSlash(name))] = true
	}

	var stale []string
	err := filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || keep[path] {
			return nil
		}
		base := d.Name()
		if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, ext) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if codegen.IsGenerated(data) {
			stale = append(stale, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scanning %s: %w", outDir, err)
	}

	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return 0, fmt.Errorf("removing stale unit: %w", err)
		}
	}
	return len(stale), nil
}

// FormatCmd runs the placeholder engine on one message.
type FormatCmd struct {
	Message        string   `arg:"" help:"Message containing {name} placeholders."`
	Params         []string `arg:"" optional:"" help:"Substitutions as name=value."`
	File           string   `help:"Print as a record declared in FILE: \"<file> <message> (<disambiguation>)\"." placeholder:"FILE"`
	Disambiguation string   `help:"Disambiguation printed with --file."`
}

func (f *FormatCmd) Run(con *console) error {
	params := make(map[string]string, len(f.Params))
	for _, p := range f.Params {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return fmt.Errorf("parameter %q: want name=value", p)
		}
		params[name] = value
	}

	if f.File != "" {
		return tr.Print(con.Out, tr.Record{Message: f.Message, Disambiguation: f.Disambiguation, File: f.File}, params)
	}
	_, err := fmt.Fprintln(con.Out, tr.Format(f.Message, params))
	return err
}
