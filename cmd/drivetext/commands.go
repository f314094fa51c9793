package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chmdznr/drivetext/internal/db"
	"github.com/chmdznr/drivetext/internal/drive"
	"github.com/chmdznr/drivetext/internal/logger"
	"github.com/chmdznr/drivetext/internal/note"
	"github.com/chmdznr/drivetext/internal/report"
	"github.com/chmdznr/drivetext/internal/storage"
	"github.com/chmdznr/drivetext/internal/sync"
	"github.com/chmdznr/drivetext/pkg/models"
	"github.com/chmdznr/drivetext/pkg/utils"
	"github.com/urfave/cli/v2"
)

// createProject stores a project configuration in "<name>.db".
//
// Notes are downloaded into --local-dir unless both --endpoint and --bucket
// are given, in which case they are mirrored into that MinIO bucket.
func createProject(c *cli.Context) error {
	projectName := c.String("name")

	database, err := db.New(projectName)
	if err != nil {
		return err
	}
	defer database.Close()

	project := &models.Project{
		Name:            projectName,
		LocalDir:        c.String("local-dir"),
		CredentialsPath: c.String("credentials"),
		TokenPath:       c.String("token"),
	}
	if project.LocalDir == "" {
		project.LocalDir = projectName + "-notes"
	}
	if project.TokenPath == "" {
		project.TokenPath = projectName + "-token.json"
	}
	project.Destination.Endpoint = c.String("endpoint")
	project.Destination.Bucket = c.String("bucket")
	project.Destination.Folder = c.String("folder")
	project.Destination.AccessKey = c.String("access-key")
	project.Destination.SecretKey = c.String("secret-key")
	project.Destination.Secure = !c.Bool("insecure")

	if _, err := drive.LoadConfig(project.CredentialsPath); err != nil {
		return err
	}
	if err := database.CreateProject(c.Context, project); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	fmt.Printf("Project '%s' created successfully\n", projectName)
	fmt.Printf("Run 'drivetext auth --project %s' to connect Google Drive\n", projectName)
	return nil
}

func openProject(c *cli.Context) (*db.DB, *models.Project, error) {
	projectName := c.String("project")
	if projectName == "" {
		return nil, nil, fmt.Errorf("project name is required")
	}
	if _, err := os.Stat(projectName + ".db"); errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("project %q does not exist; create it first", projectName)
	}

	database, err := db.New(projectName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	project, err := database.GetProject(c.Context, projectName)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to get project: %w", err)
	}
	return database, project, nil
}

func newStore(project *models.Project) (storage.Store, error) {
	if project.HasBucket() {
		return storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  project.Destination.Endpoint,
			Bucket:    project.Destination.Bucket,
			Folder:    project.Destination.Folder,
			AccessKey: project.Destination.AccessKey,
			SecretKey: project.Destination.SecretKey,
			Secure:    project.Destination.Secure,
		})
	}
	return storage.NewDirStore(project.LocalDir)
}

func newRemote(ctx context.Context, project *models.Project) (*drive.Client, error) {
	config, err := drive.LoadConfig(project.CredentialsPath)
	if err != nil {
		return nil, err
	}
	token, err := drive.LoadToken(project.TokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("not authorized; run 'drivetext auth --project %s' first", project.Name)
	}
	if err != nil {
		return nil, err
	}
	return drive.NewClient(ctx, config, token, project.TokenPath)
}

// authorize runs the browser consent flow and saves the token. A denied
// consent is reported but not treated as a failure.
func authorize(c *cli.Context) error {
	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	config, err := drive.LoadConfig(project.CredentialsPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &drive.Authorizer{
		Config: config,
		OpenURL: func(url string) {
			fmt.Printf("Open the following URL in your browser to authorize access:\n\n%s\n\n", url)
		},
	}
	token, err := a.Authorize(ctx)
	if errors.Is(err, drive.ErrAuthCancelled) || errors.Is(err, context.Canceled) {
		fmt.Println("Sign-in cancelled")
		return nil
	}
	if err != nil {
		return err
	}

	if err := drive.SaveToken(project.TokenPath, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	fmt.Printf("Authorized. Token saved to %s\n", project.TokenPath)
	return nil
}

func startSync(c *cli.Context) error {
	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	log := logger.New(project.Name+"-logs", c.Bool("verbose"))
	defer log.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	remote, err := newRemote(ctx, project)
	if err != nil {
		return err
	}
	store, err := newStore(project)
	if err != nil {
		return err
	}

	syncerConfig := sync.DefaultSyncerConfig()
	syncerConfig.ShowProgress = !c.Bool("no-progress")
	syncer := sync.NewSyncer(database, remote, store, log, &syncerConfig)

	if !c.Bool("no-keys") {
		stopKeys := watchCancelKey(ctx, cancel)
		defer stopKeys()
	}

	if interval := c.Duration("watch"); interval > 0 {
		watchConfig := sync.DefaultWatchConfig()
		watchConfig.Initial = interval
		if watchConfig.Max < interval {
			watchConfig.Max = interval
		}
		log.Info("Watching Drive every %s (press q to stop)", interval)
		syncer.Watch(ctx, watchConfig, func(result *sync.Result, err error) {
			if err != nil {
				log.Error(err, "Sync failed")
				return
			}
			log.Info("Sync at %s: %s", time.Now().Format("15:04:05"), result)
		})
		log.Info("Stopped watching")
		return nil
	}

	result, err := syncer.Reconcile(ctx)
	if errors.Is(err, context.Canceled) {
		if result != nil {
			log.Info("Sync cancelled after %d downloads", result.Downloaded)
		} else {
			log.Info("Sync cancelled")
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to sync files: %w", err)
	}

	log.Info("Sync completed: %s", result)
	if len(result.Failed) > 0 {
		for _, f := range result.Failed {
			fmt.Printf("- %v\n", f)
		}
		return cli.Exit(fmt.Sprintf("%d files failed to sync", len(result.Failed)), 1)
	}
	return nil
}

// listEntries prints the synchronized files, or exports them with --csv / --xlsx.
func listEntries(c *cli.Context) error {
	database, _, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	cur, err := database.Query(c.Context, models.QueryOptions{
		Limit:        c.Int("limit"),
		NameContains: c.String("filter"),
	})
	if err != nil {
		return err
	}
	defer cur.Close()

	switch {
	case c.String("xlsx") != "":
		path := c.String("xlsx")
		n, err := report.WriteXLSX(path, cur)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %d entries to %s\n", n, path)
	case c.String("csv") != "":
		path := c.String("csv")
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := report.WriteCSV(f, cur)
		if err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("Wrote %d entries to %s\n", n, path)
	default:
		n, err := report.WriteTable(os.Stdout, cur)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println("No entries. Run 'drivetext sync' to download notes.")
		}
	}
	return nil
}

func showEntry(c *cli.Context) error {
	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	store, err := newStore(project)
	if err != nil {
		return err
	}
	syncer := sync.NewSyncer(database, nil, store, nil, nil)

	id := c.Int64("id")
	entry, rc, err := syncer.Open(c.Context, id)
	if errors.Is(err, db.ErrNotFound) {
		return cli.Exit(fmt.Sprintf("no entry with id %d", id), 1)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return cli.Exit(fmt.Sprintf("%s has no local copy; run sync again", entry.Name), 1)
	}
	if err != nil {
		return err
	}
	defer rc.Close()

	fmt.Fprintf(os.Stderr, "== %s (synced %s)\n", entry.Name, entry.SyncedAt.Local().Format("2006-01-02 15:04:05"))
	_, err = io.Copy(os.Stdout, rc)
	return err
}

// newNote creates a local note from the argument text, or from stdin when
// no text is given.
func newNote(c *cli.Context) error {
	text := strings.Join(c.Args().Slice(), " ")
	if c.NArg() == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read note text: %w", err)
		}
		text = string(b)
	}

	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	store, err := newStore(project)
	if err != nil {
		return err
	}
	syncer := sync.NewSyncer(database, nil, store, nil, nil)

	e, err := syncer.Create(c.Context, c.String("name"), text)
	if err != nil {
		return err
	}
	fmt.Printf("Created %s with id %d\n", e.Name, e.ID)
	return nil
}

// cellEdit is one edit operation on the cells of a note.
type cellEdit struct {
	set    *int
	text   string
	insert *int
	remove []int
	add    *string
}

func cellEditFromFlags(c *cli.Context) cellEdit {
	var e cellEdit
	if c.IsSet("set") {
		pos := c.Int("set")
		e.set = &pos
		e.text = c.String("text")
	}
	if c.IsSet("insert") {
		pos := c.Int("insert")
		e.insert = &pos
	}
	e.remove = c.IntSlice("delete")
	if c.IsSet("append") {
		text := c.String("append")
		e.add = &text
	}
	return e
}

func (e cellEdit) count() int {
	n := 0
	if e.set != nil {
		n++
	}
	if e.insert != nil {
		n++
	}
	if len(e.remove) > 0 {
		n++
	}
	if e.add != nil {
		n++
	}
	return n
}

func (e cellEdit) apply(n *note.Note) error {
	switch {
	case e.set != nil:
		return n.Set(*e.set, e.text)
	case e.insert != nil:
		return n.InsertAt(*e.insert)
	case len(e.remove) > 0:
		return n.Delete(e.remove...)
	case e.add != nil:
		n.Append(*e.add)
	}
	return nil
}

func printCells(w io.Writer, n *note.Note) {
	for i, cell := range n.Cells() {
		fmt.Fprintf(w, "[%d] %s\n", i, strings.ReplaceAll(cell, "\n", "\n    "))
	}
}

// editNote lists the cells of an entry, or applies one cell operation and
// writes the merged text back to the store.
func editNote(c *cli.Context) error {
	edit := cellEditFromFlags(c)
	if edit.count() > 1 {
		return fmt.Errorf("use only one of --set, --insert, --delete, --append")
	}

	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	store, err := newStore(project)
	if err != nil {
		return err
	}
	syncer := sync.NewSyncer(database, nil, store, nil, nil)
	id := c.Int64("id")

	var edited *note.Note
	e, err := syncer.Edit(c.Context, id, func(n *note.Note) error {
		if edit.count() == 0 {
			printCells(os.Stdout, n)
			return errNoEdit
		}
		edited = n
		return edit.apply(n)
	})
	switch {
	case errors.Is(err, errNoEdit):
		return nil
	case errors.Is(err, db.ErrNotFound):
		return cli.Exit(fmt.Sprintf("no entry with id %d", id), 1)
	case errors.Is(err, storage.ErrNotFound):
		return cli.Exit(fmt.Sprintf("entry %d has no local copy; run sync again", id), 1)
	case err != nil:
		return err
	}

	printCells(os.Stdout, edited)
	fmt.Printf("Saved %s (%s)\n", e.Name, utils.FormatSize(e.Size))
	if !sync.IsLocal(e.FileID) {
		fmt.Println("Note: a newer version on Drive replaces local edits on the next sync")
	}
	return nil
}

var errNoEdit = errors.New("no edit")

func deleteEntries(c *cli.Context) error {
	ids := c.Int64Slice("id")
	for _, arg := range c.Args().Slice() {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid entry id %q", arg)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return fmt.Errorf("at least one entry id is required")
	}

	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	store, err := newStore(project)
	if err != nil {
		return err
	}
	syncer := sync.NewSyncer(database, nil, store, logger.New("", false), nil)

	n, err := syncer.Remove(c.Context, ids)
	fmt.Printf("Deleted %d of %d entries\n", n, len(ids))
	return err
}

// showStatus shows the status of the project
//
// It prints where notes are mirrored to, how many files are tracked and
// when the last download happened.
func showStatus(c *cli.Context) error {
	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := database.GetStats(c.Context)
	if err != nil {
		return err
	}

	fmt.Printf("Project: %s\n", project.Name)
	if project.HasBucket() {
		fmt.Printf("Destination: %s/%s/%s\n", project.Destination.Endpoint, project.Destination.Bucket, project.Destination.Folder)
	} else {
		fmt.Printf("Destination: %s\n", project.LocalDir)
	}
	if _, err := os.Stat(project.TokenPath); err == nil {
		fmt.Println("Drive: authorized")
	} else {
		fmt.Println("Drive: not authorized")
	}
	fmt.Printf("Files: %d (Size: %s)\n", stats.TotalFiles, utils.FormatSize(stats.TotalSize))
	if stats.LastSyncedAt.IsZero() {
		fmt.Println("Last download: never")
	} else {
		fmt.Printf("Last download: %s (%s ago)\n",
			stats.LastSyncedAt.Local().Format("2006-01-02 15:04:05"),
			utils.FormatDuration(time.Since(stats.LastSyncedAt)))
	}
	return nil
}
