package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/review-orchestrator/internal/common"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
)

type CheckListRepository interface {
	CreateCheckList(ctx context.Context, cl *entity.CheckList) error
	GetCheckList(ctx context.Context, id uuid.UUID) (*entity.CheckList, error)
	ListCheckItems(ctx context.Context, checkListID uuid.UUID) ([]entity.CheckItem, error)
	// InsertCheckItems appends items to the list. Items must be ordered
	// parent before child.
	InsertCheckItems(ctx context.Context, checkListID uuid.UUID, items []entity.CheckItem) error
}

type checkListRepository struct {
	base
	logger *slog.Logger
}

func NewCheckListRepository(drv *entsql.Driver, logger *slog.Logger) CheckListRepository {
	return &checkListRepository{base: newBase(drv), logger: logger}
}

func (r *checkListRepository) CreateCheckList(ctx context.Context, cl *entity.CheckList) error {
	if cl.ID == uuid.Nil {
		cl.ID = uuid.New()
	}
	cl.CreatedAt = now()
	query, args := r.builder().Insert("check_lists").
		Columns("id", "name", "description", "created_at").
		Values(cl.ID, cl.Name, cl.Description, cl.CreatedAt).
		Query()
	if _, err := r.exec(ctx, r.db, query, args); err != nil {
		r.logger.Error("failed to create check list", "check_list_id", cl.ID, "error", err)
		return fmt.Errorf("create check list: %w", err)
	}
	return nil
}

func (r *checkListRepository) GetCheckList(ctx context.Context, id uuid.UUID) (*entity.CheckList, error) {
	b := r.builder()
	query, args := b.Select("id", "name", "description", "created_at").
		From(b.Table("check_lists")).
		Where(entsql.EQ("id", id)).
		Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get check list: %w", err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("check list %s: %w", id, common.ErrNotFound)
	}
	var cl entity.CheckList
	if err := rows.Scan(&cl.ID, &cl.Name, &cl.Description, &cl.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan check list: %w", err)
	}
	return &cl, nil
}

func (r *checkListRepository) listItems(ctx context.Context, q execQuerier, checkListID uuid.UUID) ([]entity.CheckItem, error) {
	b := r.builder()
	query, args := b.Select("id", "check_list_id", "parent_id", "name", "description").
		From(b.Table("check_items")).
		Where(entsql.EQ("check_list_id", checkListID)).
		OrderBy("position").
		Query()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list check items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []entity.CheckItem
	for rows.Next() {
		var (
			it     entity.CheckItem
			parent sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.CheckListID, &parent, &it.Name, &it.Description); err != nil {
			return nil, fmt.Errorf("scan check item: %w", err)
		}
		it.ParentID = strPtr(parent)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *checkListRepository) ListCheckItems(ctx context.Context, checkListID uuid.UUID) ([]entity.CheckItem, error) {
	return r.listItems(ctx, r.db, checkListID)
}

func (r *checkListRepository) InsertCheckItems(ctx context.Context, checkListID uuid.UUID, items []entity.CheckItem) (err error) {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := r.listItems(ctx, tx, checkListID)
	if err != nil {
		return err
	}
	ins := r.builder().Insert("check_items").
		Columns("id", "check_list_id", "parent_id", "name", "description", "position")
	for i, it := range items {
		ins.Values(it.ID, checkListID, nullableString(it.ParentID), it.Name, it.Description, len(existing)+i)
	}
	query, args := ins.Query()
	if _, err = r.exec(ctx, tx, query, args); err != nil {
		r.logger.Error("failed to insert check items", "check_list_id", checkListID, "count", len(items), "error", err)
		return fmt.Errorf("insert check items: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
