// package esoss is the esovm host system.
// It stores program images in a sqlite database, and runs them with the configured devices and scheduler.
package esoss

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/exp/singleflight"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"esovm.org/esovm"
	"esovm.org/esovm/esodev"
	"esovm.org/esovm/esoimg"
	"esovm.org/esovm/esomem"
	"esovm.org/esovm/evm1"
	"esovm.org/esovm/internal/cadata"
	"esovm.org/esovm/internal/dbutil"
	"esovm.org/esovm/internal/migrations"
	"esovm.org/esovm/internal/sqlstores"
	"esovm.org/esovm/internal/stores"
)

// ImageCacheSize is the number of decoded images kept in memory
const ImageCacheSize = 128

func OpenDB(p string) (*sqlx.DB, error) {
	return dbutil.Open(p)
}

func SetupDB(ctx context.Context, db *sqlx.DB) error {
	return migrations.Migrate(ctx, db, currentSchema)
}

var currentSchema = func() *migrations.State {
	x := migrations.InitialState()
	x = sqlstores.Migration(x)
	x = x.ApplyStmt(`CREATE TABLE image_store (
		store_id INTEGER NOT NULL,
		FOREIGN KEY(store_id) REFERENCES stores(id)
	)`)
	x = x.ApplyStmt(`CREATE TABLE images (
		name TEXT NOT NULL,
		blob_id BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,

		PRIMARY KEY(name)
	)`)
	x = x.ApplyStmt(`CREATE TABLE runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		blob_id BLOB NOT NULL,
		thread TEXT NOT NULL,
		steps INTEGER NOT NULL,
		error TEXT,
		finished_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	return x
}()

// ErrImageNotFound is returned when a name or ID does not refer to an image
type ErrImageNotFound struct {
	Ref string
}

func (e ErrImageNotFound) Error() string {
	return fmt.Sprintf("image %q not found", e.Ref)
}

// System stores and runs images.
// Images posted with Load are kept in memory, images posted with Put are kept in the database.
type System struct {
	db  *sqlx.DB
	cfg Config

	storeID sqlstores.StoreID
	store   *sqlstores.Store
	scratch *stores.Mem
	cache   *lru.Cache[cadata.ID, *esoimg.Image]
	// loads merges concurrent Gets of an image which is not cached
	loads  singleflight.Group[cadata.ID, *esoimg.Image]
	parses atomic.Int64

	// externs are available to CALL in every image
	mu      sync.RWMutex
	externs map[string]evm1.ExternalFunc
}

// NewSystem creates a System, db must have been set up with SetupDB
func NewSystem(ctx context.Context, db *sqlx.DB, cfg Config) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sid, err := dbutil.DoTx1(ctx, db, func(tx *sqlx.Tx) (sqlstores.StoreID, error) {
		var sid sqlstores.StoreID
		err := tx.GetContext(ctx, &sid, `SELECT store_id FROM image_store`)
		if err == nil {
			return sid, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		if sid, err = sqlstores.CreateStore(tx); err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO image_store (store_id) VALUES (?)`, sid)
		return sid, err
	})
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[cadata.ID, *esoimg.Image](ImageCacheSize)
	if err != nil {
		return nil, err
	}
	return &System{
		db:      db,
		cfg:     cfg,
		storeID: sid,
		store:   sqlstores.NewStore(db, esovm.Hash, esovm.MaxImageBytes, sid),
		scratch: stores.NewMem(esovm.Hash, esovm.MaxImageBytes),
		cache:   cache,
		externs: make(map[string]evm1.ExternalFunc),
	}, nil
}

func (s *System) Config() Config {
	return s.cfg
}

// PutExternal makes fn callable as name from every image run after this call.
func (s *System) PutExternal(name string, fn evm1.ExternalFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.externs[name] = fn
}

// Load validates an encoded image and keeps it in memory, it is not saved.
func (s *System) Load(ctx context.Context, data []byte) (cadata.ID, error) {
	img, err := esoimg.Parse(data)
	if err != nil {
		return cadata.ID{}, err
	}
	id, err := s.scratch.Post(ctx, data)
	if err != nil {
		return cadata.ID{}, err
	}
	s.cache.Add(id, img)
	return id, nil
}

// Put saves an image in the database under name, replacing any image with that name.
func (s *System) Put(ctx context.Context, name string, img *esoimg.Image) (cadata.ID, error) {
	data, err := esoimg.Marshal(img)
	if err != nil {
		return cadata.ID{}, err
	}
	id, err := s.store.Post(ctx, data)
	if err != nil {
		return cadata.ID{}, err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO images (name, blob_id) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET blob_id = excluded.blob_id, created_at = CURRENT_TIMESTAMP`, name, id[:]); err != nil {
		return cadata.ID{}, err
	}
	logctx.Info(ctx, "stored image", zap.String("name", name), zap.Stringer("id", id), zap.Int("size", len(data)))
	return id, nil
}

// Drop removes the name, and the image if no other name refers to it.
func (s *System) Drop(ctx context.Context, name string) error {
	return dbutil.DoTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var idBytes []byte
		if err := tx.GetContext(ctx, &idBytes, `DELETE FROM images WHERE name = ? RETURNING blob_id`, name); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrImageNotFound{Ref: name}
			}
			return err
		}
		var count int
		if err := tx.GetContext(ctx, &count, `SELECT count(*) FROM images WHERE blob_id = ?`, idBytes); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM store_blobs WHERE store_id = ? AND blob_id = ?`, s.storeID, idBytes); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM blobs WHERE id = ? AND id NOT IN (SELECT blob_id FROM store_blobs)`, idBytes)
		return err
	})
}

// Resolve turns a name or an encoded ID into an image ID
func (s *System) Resolve(ctx context.Context, ref string) (cadata.ID, error) {
	var idBytes []byte
	err := s.db.GetContext(ctx, &idBytes, `SELECT blob_id FROM images WHERE name = ?`, ref)
	switch {
	case err == nil:
		return cadata.IDFromBytes(idBytes), nil
	case !errors.Is(err, sql.ErrNoRows):
		return cadata.ID{}, err
	}
	id, err := cadata.ParseID(ref)
	if err != nil {
		return cadata.ID{}, ErrImageNotFound{Ref: ref}
	}
	return id, nil
}

// Get returns the image with id, from memory or the database.
func (s *System) Get(ctx context.Context, id cadata.ID) (*esoimg.Image, error) {
	if img, ok := s.cache.Get(id); ok {
		return img, nil
	}
	img, err, _ := s.loads.Do(id, func() (*esoimg.Image, error) {
		if img, ok := s.cache.Get(id); ok {
			return img, nil
		}
		return s.load(ctx, id)
	})
	return img, err
}

// load reads, checks and parses an image, and adds it to the cache
func (s *System) load(ctx context.Context, id cadata.ID) (*esoimg.Image, error) {
	s.parses.Add(1)
	buf := make([]byte, esovm.MaxImageBytes)
	n, err := stores.Union{s.scratch, s.store}.Get(ctx, id, buf)
	if err != nil {
		if cadata.IsNotFound(err) {
			return nil, ErrImageNotFound{Ref: id.String()}
		}
		return nil, err
	}
	if err := cadata.Check(esovm.Hash, id, buf[:n]); err != nil {
		return nil, err
	}
	img, err := esoimg.Parse(buf[:n])
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, img)
	return img, nil
}

// ImageInfo describes a stored image
type ImageInfo struct {
	Name string
	ID   cadata.ID
	Size int
}

// List returns the stored images, sorted by name
func (s *System) List(ctx context.Context) ([]ImageInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT images.name, images.blob_id, length(blobs.data)
		FROM images JOIN blobs ON images.blob_id = blobs.id
		ORDER BY images.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ret []ImageInfo
	for rows.Next() {
		var info ImageInfo
		var idBytes []byte
		if err := rows.Scan(&info.Name, &idBytes, &info.Size); err != nil {
			return nil, err
		}
		info.ID = cadata.IDFromBytes(idBytes)
		ret = append(ret, info)
	}
	return ret, rows.Err()
}

// Stdio is the console of a run
type Stdio struct {
	In  io.Reader
	Out io.Writer
}

// Run starts one thread for each image and schedules them until they have all finished.
// The threads share the memory and devices.
// The results are recorded in the database, in the same order as ids.
func (s *System) Run(ctx context.Context, stdio Stdio, ids ...cadata.ID) ([]Result, error) {
	env, console, err := s.newEnv(stdio)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	externs := make(map[string]evm1.ExternalFunc, len(s.externs))
	for k, v := range s.externs {
		externs[k] = v
	}
	s.mu.RUnlock()

	tasks := make([]Task, len(ids))
	for i, id := range ids {
		img, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		th, err := esoimg.NewThread(img, externs, env, s.cfg.ThreadConfig())
		if err != nil {
			return nil, err
		}
		tasks[i] = Task{Name: fmt.Sprintf("%d:%s", i, shortID(id)), Thread: th}
	}
	logctx.Info(ctx, "starting threads", zap.Int("count", len(tasks)), zap.String("mode", s.cfg.Sched.Mode))

	var results []Result
	switch s.cfg.Sched.Mode {
	case SchedParallel:
		results, err = RunParallel(ctx, tasks, s.cfg.Sched.Quantum, s.cfg.Sched.MaxCycles)
	default:
		results, err = RunRoundRobin(ctx, tasks, s.cfg.Sched.Quantum, s.cfg.Sched.MaxCycles)
	}
	if console != nil {
		if err2 := console.Flush(); err2 != nil && err == nil {
			err = err2
		}
	}
	if err != nil {
		return results, err
	}
	if err := s.recordRuns(ctx, ids, results); err != nil {
		return results, err
	}
	return results, nil
}

func (s *System) newEnv(stdio Stdio) (evm1.Env, *esodev.Console, error) {
	var env evm1.Env
	if s.cfg.Memory.Size > 0 {
		env.Memory = esomem.New(s.cfg.Memory.Size, s.cfg.Memory.StackSize)
	}
	bus := esodev.NewBus()
	var console *esodev.Console
	if s.cfg.Devices.Console {
		out := stdio.Out
		if out == nil {
			out = io.Discard
		}
		console = esodev.NewConsole(stdio.In, out)
		console.Attach(bus)
	}
	if s.cfg.Devices.Clock {
		esodev.NewClock().Attach(bus)
	}
	if s.cfg.Devices.Random {
		var seed []byte
		if s.cfg.Devices.RandomSeed != "" {
			seed = []byte(s.cfg.Devices.RandomSeed)
		}
		r, err := esodev.NewRandom(seed)
		if err != nil {
			return evm1.Env{}, nil, err
		}
		r.Attach(bus)
	}
	env.Ports = bus
	return env, console, nil
}

func (s *System) recordRuns(ctx context.Context, ids []cadata.ID, results []Result) error {
	return dbutil.DoTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for i, res := range results {
			var errText sql.NullString
			if res.Err != nil {
				errText = sql.NullString{String: res.Err.Error(), Valid: true}
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO runs (blob_id, thread, steps, error) VALUES (?, ?, ?, ?)`,
				ids[i][:], res.Name, res.Steps, errText); err != nil {
				return err
			}
		}
		return nil
	})
}

// Status summarizes the contents of the database
type Status struct {
	Images int
	Blobs  int64
	Runs   int
	Faults int
	// Loaded is the number of images held in memory by Load
	Loaded int
}

func (s *System) Status(ctx context.Context) (Status, error) {
	st := Status{Loaded: s.scratch.Len()}
	err := dbutil.DoTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &st.Images, `SELECT count(*) FROM images`); err != nil {
			return err
		}
		var err error
		if st.Blobs, err = sqlstores.CountBlobs(tx, s.storeID); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &st.Runs, `SELECT count(*) FROM runs`); err != nil {
			return err
		}
		return tx.GetContext(ctx, &st.Faults, `SELECT count(*) FROM runs WHERE error IS NOT NULL`)
	})
	return st, err
}

func shortID(id cadata.ID) string {
	return id.String()[:8]
}
