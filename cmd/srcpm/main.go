// Command srcpm is the thin CLI adapter over the from-source package
// manager's components (spec.md §6), grounded on panux-builder's
// cmd/pkgen use of github.com/urfave/cli, upgraded to the v2 API.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	srcpm "github.com/srcforge/srcpm"
	"github.com/srcforge/srcpm/internal/binpkg"
	"github.com/srcforge/srcpm/internal/buildsvc"
	"github.com/srcforge/srcpm/internal/cache"
	"github.com/srcforge/srcpm/internal/env"
	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/flags"
	"github.com/srcforge/srcpm/internal/hashsvc"
	"github.com/srcforge/srcpm/internal/hooks"
	"github.com/srcforge/srcpm/internal/history"
	"github.com/srcforge/srcpm/internal/info"
	"github.com/srcforge/srcpm/internal/installdb"
	"github.com/srcforge/srcpm/internal/logx"
	"github.com/srcforge/srcpm/internal/oninterrupt"
	"github.com/srcforge/srcpm/internal/recipe"
	"github.com/srcforge/srcpm/internal/remover"
	"github.com/srcforge/srcpm/internal/resolver"
	"github.com/srcforge/srcpm/internal/sandbox"
	"github.com/srcforge/srcpm/internal/search"
)

const (
	logRotateMaxBytes   = 10 * 1024 * 1024
	logRotateMaxBackups = 5
)

// app bundles the collaborators wired together once per invocation,
// following the teacher's preference for explicit dependency injection
// over ambient singletons (spec.md §9's Design Note).
type app struct {
	ctx      context.Context
	log      *logx.Std
	db       *installdb.DB
	hist     *history.Log
	flags    *flags.Store
	hooks    *hooks.Dispatcher
	sandbox  *sandbox.Sandbox
	resolver *resolver.Resolver
	remover  *remover.Remover
	binpkg   *binpkg.Store
	info     *info.Info
	search   *search.Search
	cache    *cache.Cache
	hash     *hashsvc.Service
	builder  *buildsvc.Builder
}

func newApp(verbose, dryRun bool, jobs int) (*app, error) {
	// Builder subprocesses run under this context (pipeline.go), so a
	// SIGINT/SIGTERM mid-build cancels the in-flight command instead of
	// only firing the rollback handlers registered below.
	ctx, _ := srcpm.InterruptibleContext()

	level := logx.Info
	if verbose {
		level = logx.Debug
	}
	l := logx.New(os.Stderr, level)
	// The rotating file sink is a convenience mirroring logger.py's
	// RotatingFileHandler; a read-only/missing log directory shouldn't
	// block the CLI from running, so a failure here only logs a warning.
	if err := l.WithRotatingFile(env.LogFile, logRotateMaxBytes, logRotateMaxBackups); err != nil {
		l.Warnf("log file %s unavailable, continuing without it: %v", env.LogFile, err)
	}

	hist, err := history.Open(env.HistoryFile)
	if err != nil {
		return nil, err
	}
	db, err := installdb.Open(env.InstallDBFile)
	if err != nil {
		return nil, err
	}
	fs, err := flags.Open(env.UseConfigFile)
	if err != nil {
		return nil, err
	}
	sb, err := sandbox.New(env.SandboxRoot, l)
	if err != nil {
		return nil, err
	}
	hd := &hooks.Dispatcher{Log: l}
	rv := &remover.Remover{DB: db, Sandbox: sb, Hooks: hd, History: hist, Log: l}
	bp := &binpkg.Store{Root: env.BinpkgRoot, Hooks: hd, History: hist, Log: l}
	iq := &info.Info{DB: db, Flags: fs}
	sr := &search.Search{RepoRoots: []string{env.RecipeRoot}, DB: db, Sandbox: sb, Hooks: hd, History: hist}
	ch := cache.New([]string{env.CacheRoot}, 30*24*time.Hour, 0, l)
	hs := &hashsvc.Service{Cache: ch, History: hist}
	if jobs < 1 {
		jobs = 1
	}
	bd := &buildsvc.Builder{
		Jobs:        jobs,
		DryRun:      dryRun,
		Log:         l,
		Hooks:       hd,
		SandboxRoot: env.SandboxRoot,
	}

	// A bare SIGINT mid-install must still leave the sandbox in a state
	// Rollback() can recover from, the way the teacher's build/batch
	// commands register a cleanup for their own in-flight sandboxes.
	srcpm.RegisterAtExit(func() error {
		_, err := hist.Record("interrupt", "", "sandbox rolled back", "aborted")
		return err
	})
	oninterrupt.Register(func() {
		l.Warnf("interrupted, rolling back sandbox %s", sb.Root)
		sb.Rollback()
		srcpm.RunAtExit()
	})

	return &app{
		ctx: ctx,
		log: l, db: db, hist: hist, flags: fs, hooks: hd, sandbox: sb,
		resolver: resolver.New(db), remover: rv, binpkg: bp, info: iq, search: sr,
		cache: ch, hash: hs, builder: bd,
	}, nil
}

func main() {
	cliApp := &cli.App{
		Name:  "srcpm",
		Usage: "a from-source package manager",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
			&cli.BoolFlag{Name: "dry-run", Usage: "log actions without executing subprocesses"},
			&cli.IntFlag{Name: "jobs", Aliases: []string{"j"}, Value: 1, Usage: "parallel build jobs"},
		},
		Commands: []*cli.Command{
			installCmd(),
			removeCmd(),
			upgradeCmd(),
			flagsCmd(),
			syncCmd(),
			createCmd(),
			historyCmd(),
			infoCmd(),
			searchCmd(),
			hashCmd(),
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func installCmd() *cli.Command {
	return &cli.Command{
		Name:    "install",
		Aliases: []string{"i"},
		Usage:   "resolve a package's dependency order and build/stage/promote each one",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "prefix", Usage: "real filesystem root staged prefixes are promoted under (default /)"},
			&cli.BoolFlag{Name: "force", Usage: "rebuild even packages already recorded as installed"},
			&cli.StringFlag{Name: "arch", Value: "x86_64", Usage: "arch recorded in the binary package produced for each build"},
		},
		Action: func(ctx *cli.Context) error {
			name := ctx.Args().First()
			if name == "" {
				return cli.Exit("install requires a package name", 1)
			}
			a, err := newApp(ctx.Bool("verbose"), ctx.Bool("dry-run"), ctx.Int("jobs"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			r, err := loadRecipeFile(name)
			if err != nil {
				return cli.Exit(err, 1)
			}
			order, err := a.resolver.Resolve(r, nil)
			if err != nil {
				return cli.Exit(err, 1)
			}
			fmt.Println("build order:")
			for _, pkg := range order {
				fmt.Println(" ", pkg)
			}
			if err := installOrder(a, order, destRootFrom(ctx.String("prefix")), ctx.String("arch"), ctx.Bool("force")); err != nil {
				return cli.Exit(err, 1)
			}
			fmt.Printf("installed %s\n", name)
			return nil
		},
	}
}

func removeCmd() *cli.Command {
	return &cli.Command{
		Name:    "remove",
		Aliases: []string{"rm"},
		Usage:   "uninstall a package, refusing if something still depends on it",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "remove even if reverse dependencies exist"},
		},
		Action: func(ctx *cli.Context) error {
			name := ctx.Args().First()
			if name == "" {
				return cli.Exit("remove requires a package name", 1)
			}
			a, err := newApp(ctx.Bool("verbose"), ctx.Bool("dry-run"), ctx.Int("jobs"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			ok, err := a.remover.RemovePackage(name, ctx.Bool("force"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			if !ok {
				return cli.Exit(fmt.Sprintf("%s is still depended upon; pass --force to remove anyway", name), 1)
			}
			fmt.Printf("removed %s\n", name)
			return nil
		},
	}
}

func upgradeCmd() *cli.Command {
	return &cli.Command{
		Name:    "upgrade",
		Aliases: []string{"up"},
		Usage:   "rebuild whatever find_missing reports for a package, or every installed package with --all",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "upgrade every installed package instead of a single one"},
			&cli.StringFlag{Name: "prefix", Usage: "real filesystem root staged prefixes are promoted under (default /)"},
			&cli.StringFlag{Name: "arch", Value: "x86_64"},
		},
		Action: func(ctx *cli.Context) error {
			a, err := newApp(ctx.Bool("verbose"), ctx.Bool("dry-run"), ctx.Int("jobs"))
			if err != nil {
				return cli.Exit(err, 1)
			}

			var targets []string
			if ctx.Bool("all") {
				targets = a.db.GetInstalledPackages()
			} else {
				name := ctx.Args().First()
				if name == "" {
					return cli.Exit("upgrade requires a package name, or --all", 1)
				}
				targets = []string{name}
			}

			destRoot := destRootFrom(ctx.String("prefix"))
			for _, name := range targets {
				r, err := loadRecipeFile(name)
				if err != nil {
					return cli.Exit(err, 1)
				}
				missing, err := a.resolver.FindMissing(r, nil)
				if err != nil {
					return cli.Exit(err, 1)
				}
				// FindMissing only flags packages that aren't installed at
				// all; a package can also be "missing" a newer version of
				// itself, so compare the installed recipe's version against
				// the repo's.
				if installed, err := a.db.GetRecipe(name); err == nil {
					if srcpm.CompareVersions(r.Version, installed.Version) > 0 && !containsString(missing, name) {
						missing = append(missing, name)
					}
				}
				if len(missing) == 0 {
					fmt.Printf("%s: up to date\n", name)
					continue
				}
				fmt.Printf("%s: rebuilding %v\n", name, missing)
				if err := installOrder(a, missing, destRoot, ctx.String("arch"), true); err != nil {
					return cli.Exit(err, 1)
				}
			}
			return nil
		},
	}
}

func flagsCmd() *cli.Command {
	return &cli.Command{
		Name:    "flags",
		Aliases: []string{"fl"},
		Usage:   "inspect or change USE flags",
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "flags set <flag> <on|off> [package]",
				Action: func(ctx *cli.Context) error {
					if ctx.Args().Len() < 2 {
						return cli.Exit("usage: flags set <flag> <on|off> [package]", 1)
					}
					flag := ctx.Args().Get(0)
					enabled := ctx.Args().Get(1) == "on"
					pkg := ctx.Args().Get(2)

					a, err := newApp(ctx.Bool("verbose"), ctx.Bool("dry-run"), ctx.Int("jobs"))
					if err != nil {
						return cli.Exit(err, 1)
					}
					if pkg == "" {
						err = a.flags.SetGlobal(flag, enabled)
					} else {
						err = a.flags.SetPackageFlag(pkg, flag, enabled)
					}
					if err != nil {
						return cli.Exit(err, 1)
					}
					return nil
				},
			},
			{
				Name:  "log",
				Usage: "print the flag change history",
				Action: func(ctx *cli.Context) error {
					a, err := newApp(ctx.Bool("verbose"), ctx.Bool("dry-run"), ctx.Int("jobs"))
					if err != nil {
						return cli.Exit(err, 1)
					}
					for _, e := range a.flags.ChangeLog() {
						fmt.Printf("%s %s %s=%v\n", e.Timestamp, e.Package, e.Flag, e.Enabled)
					}
					return nil
				},
			},
		},
	}
}

func syncCmd() *cli.Command {
	return &cli.Command{
		Name:    "sync",
		Aliases: []string{"s"},
		Usage:   "install a previously built binary package",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "version", Usage: "package version; omit if the argument is a full stem, e.g. foo-1.2-x86_64"},
			&cli.StringFlag{Name: "arch", Value: "x86_64"},
			&cli.BoolFlag{Name: "force"},
		},
		Action: func(ctx *cli.Context) error {
			arg := ctx.Args().First()
			if arg == "" {
				return cli.Exit("sync requires a package name or stem", 1)
			}
			var pv srcpm.PackageVersion
			if ctx.String("version") == "" {
				parsed, err := srcpm.ParseVersion(arg)
				if err != nil {
					return cli.Exit(fmt.Sprintf("sync requires --version, or a full stem: %v", err), 1)
				}
				pv = parsed
			} else {
				pv = srcpm.PackageVersion{Name: arg, Version: ctx.String("version"), Arch: ctx.String("arch")}
			}
			a, err := newApp(ctx.Bool("verbose"), ctx.Bool("dry-run"), ctx.Int("jobs"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			if err := a.binpkg.InstallBinpkg(pv.Name, pv.Version, a.sandbox.Root, pv.Arch, ctx.Bool("force")); err != nil {
				if errs.Is(err, errs.Integrity) {
					return cli.Exit(fmt.Sprintf("integrity check failed for %s: %v", pv.Name, err), 1)
				}
				return cli.Exit(err, 1)
			}
			fmt.Printf("synced %s\n", pv)
			return nil
		},
	}
}

func createCmd() *cli.Command {
	return &cli.Command{
		Name:    "create",
		Aliases: []string{"c"},
		Usage:   "scaffold a new recipe",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "version", Required: true},
			&cli.StringFlag{Name: "build-system", Value: "autotools"},
		},
		Action: func(ctx *cli.Context) error {
			name := ctx.Args().First()
			if name == "" {
				return cli.Exit("create requires a package name", 1)
			}
			a, err := newApp(ctx.Bool("verbose"), ctx.Bool("dry-run"), ctx.Int("jobs"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			auth := &recipe.Authoring{History: a.hist}
			dir, err := auth.CreateBaseRecipe(env.RecipeRoot, name, ctx.String("version"), ctx.String("build-system"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			fmt.Println(dir)
			return nil
		},
	}
}

func hashCmd() *cli.Command {
	return &cli.Command{
		Name:  "hash",
		Usage: "generate or verify file hashes and embed them in a recipe",
		Subcommands: []*cli.Command{
			{
				Name:      "gen",
				Usage:     "hash a file and write the digest into a recipe's hashes map",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "alg", Value: "sha256", Usage: "sha256|sha512|md5|blake2b"},
					&cli.StringFlag{Name: "recipe", Usage: "recipe.yaml to inject the digest into"},
				},
				Action: func(ctx *cli.Context) error {
					path := ctx.Args().First()
					if path == "" {
						return cli.Exit("hash gen requires a file path", 1)
					}
					a, err := newApp(ctx.Bool("verbose"), ctx.Bool("dry-run"), ctx.Int("jobs"))
					if err != nil {
						return cli.Exit(err, 1)
					}
					digest, err := a.hash.GenerateHash(path, ctx.String("alg"))
					if err != nil {
						return cli.Exit(err, 1)
					}
					if recipeFile := ctx.String("recipe"); recipeFile != "" {
						r, err := recipe.Load(recipeFile)
						if err != nil {
							return cli.Exit(err, 1)
						}
						hashes := r.Hashes
						if hashes == nil {
							hashes = map[string]string{}
						}
						hashes[ctx.String("alg")] = digest
						if err := a.hash.InjectIntoRecipe(recipeFile, hashes); err != nil {
							return cli.Exit(err, 1)
						}
					}
					fmt.Printf("%s  %s\n", digest, path)
					return nil
				},
			},
			{
				Name:      "verify",
				Usage:     "verify a file's hash against an expected digest",
				ArgsUsage: "<path> <expected>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "alg", Value: "sha256", Usage: "sha256|sha512|md5|blake2b"},
				},
				Action: func(ctx *cli.Context) error {
					path := ctx.Args().Get(0)
					expected := ctx.Args().Get(1)
					if path == "" || expected == "" {
						return cli.Exit("hash verify requires <path> <expected>", 1)
					}
					a, err := newApp(ctx.Bool("verbose"), ctx.Bool("dry-run"), ctx.Int("jobs"))
					if err != nil {
						return cli.Exit(err, 1)
					}
					ok, err := a.hash.VerifyIntegrity(path, expected, ctx.String("alg"))
					if err != nil {
						return cli.Exit(err, 1)
					}
					if !ok {
						return cli.Exit(fmt.Sprintf("hash mismatch for %s", path), 1)
					}
					fmt.Printf("%s: ok\n", path)
					return nil
				},
			},
		},
	}
}

func infoCmd() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "show a package's status or composed details",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Value: "table", Usage: "json|yaml|csv|markdown|table"},
		},
		Action: func(ctx *cli.Context) error {
			name := ctx.Args().First()
			a, err := newApp(ctx.Bool("verbose"), ctx.Bool("dry-run"), ctx.Int("jobs"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			if name == "" {
				out, err := a.info.ExportAll(ctx.String("format"))
				if err != nil {
					return cli.Exit(err, 1)
				}
				fmt.Println(out)
				return nil
			}
			out, err := a.info.Details(name, ctx.String("format"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			fmt.Println(out)
			return nil
		},
	}
}

func searchCmd() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "list recipes, locate one, or inspect its files/dependencies",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list every recipe across configured repository roots",
				Action: func(ctx *cli.Context) error {
					a, err := newApp(ctx.Bool("verbose"), ctx.Bool("dry-run"), ctx.Int("jobs"))
					if err != nil {
						return cli.Exit(err, 1)
					}
					names, err := a.search.ListAllPackages()
					if err != nil {
						return cli.Exit(err, 1)
					}
					for _, n := range names {
						fmt.Println(n)
					}
					return nil
				},
			},
			{
				Name:  "deps",
				Usage: "search deps <package>",
				Action: func(ctx *cli.Context) error {
					name := ctx.Args().First()
					if name == "" {
						return cli.Exit("search deps requires a package name", 1)
					}
					a, err := newApp(ctx.Bool("verbose"), ctx.Bool("dry-run"), ctx.Int("jobs"))
					if err != nil {
						return cli.Exit(err, 1)
					}
					deps, err := a.search.ListDependencies(name)
					if err != nil {
						return cli.Exit(err, 1)
					}
					for _, d := range deps {
						fmt.Println(d)
					}
					return nil
				},
			},
		},
	}
}

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"h"},
		Usage:   "show the audit journal",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20},
			&cli.StringFlag{Name: "package"},
		},
		Action: func(ctx *cli.Context) error {
			a, err := newApp(ctx.Bool("verbose"), ctx.Bool("dry-run"), ctx.Int("jobs"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			entries, err := a.hist.ListHistory(ctx.Int("limit"), ctx.String("package"), "", "")
			if err != nil {
				return cli.Exit(err, 1)
			}
			for _, e := range entries {
				ts, _ := time.Parse(time.RFC3339, e.Timestamp)
				fmt.Printf("#%d [%s] %s %s: %s (%s)\n", e.ID, ts.Format(time.RFC3339), e.Action, e.Package, e.Details, e.Status)
			}
			return nil
		},
	}
}
