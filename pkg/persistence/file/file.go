// Package file provides file-based persistence implementation for workflows, workspaces and checkpoints.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/dukex/blockflow/pkg/persistence"
)

const (
	workflowsDir   = "workflows"
	workspacesDir  = "workspaces"
	checkpointsDir = "checkpoints"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root  string
	store *store
	repositories
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	s := &store{root: cleanRoot}

	return &Persistence{
		root:         cleanRoot,
		store:        s,
		repositories: newRepositories(diskView{s: s}),
	}
}

// Transaction stages every write made through tx and flushes them to disk only when fn succeeds.
// Writers are serialized for the duration of fn, so fn must only use the repositories it is given.
func (fp *Persistence) Transaction(ctx context.Context, fn persistence.TxFunc) error {
	fp.store.mu.Lock()
	defer fp.store.mu.Unlock()

	tx := newTxView(fp.store)

	err := fn(ctx, newRepositories(tx))
	if err != nil {
		return err
	}

	return tx.commit()
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

type repositories struct {
	workflows   *WorkflowRepository
	workspaces  *WorkspaceRepository
	checkpoints *CheckpointRepository
}

func newRepositories(v view) repositories {
	return repositories{
		workflows:   &WorkflowRepository{v: v},
		workspaces:  &WorkspaceRepository{v: v},
		checkpoints: &CheckpointRepository{v: v},
	}
}

func (r repositories) Workflows() persistence.WorkflowRepository {
	return r.workflows
}

func (r repositories) Workspaces() persistence.WorkspaceRepository {
	return r.workspaces
}

func (r repositories) Checkpoints() persistence.CheckpointRepository {
	return r.checkpoints
}
