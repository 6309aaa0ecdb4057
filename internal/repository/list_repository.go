package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elmyly/whaty/internal/entities"
)

// ListRepository persists saved recipient lists, scoped by owner.
type ListRepository struct {
	db *pgxpool.Pool
}

func NewListRepository(db *pgxpool.Pool) *ListRepository {
	return &ListRepository{db: db}
}

// Create stores a new list and assigns it a generated id.
func (r *ListRepository) Create(list *entities.RecipientList) error {
	if list.ID == "" {
		list.ID = uuid.NewString()
	}
	numbers, err := json.Marshal(list.Numbers)
	if err != nil {
		return fmt.Errorf("encode numbers: %w", err)
	}
	_, err = r.db.Exec(context.Background(),
		"INSERT INTO recipient_lists (id, owner_id, name, numbers) VALUES ($1, $2, $3, $4)",
		list.ID, list.OwnerID, list.Name, numbers)
	return err
}

func (r *ListRepository) GetByID(ownerID int, id string) (*entities.RecipientList, error) {
	var list entities.RecipientList
	var numbers []byte
	err := r.db.QueryRow(context.Background(),
		"SELECT id, owner_id, name, numbers FROM recipient_lists WHERE id = $1 AND owner_id = $2",
		id, ownerID).Scan(&list.ID, &list.OwnerID, &list.Name, &numbers)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(numbers, &list.Numbers); err != nil {
		return nil, fmt.Errorf("decode numbers: %w", err)
	}
	return &list, nil
}

func (r *ListRepository) GetAllByOwner(ownerID int) ([]entities.RecipientList, error) {
	rows, err := r.db.Query(context.Background(),
		"SELECT id, owner_id, name, numbers FROM recipient_lists WHERE owner_id = $1 ORDER BY created_at",
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lists := []entities.RecipientList{}
	for rows.Next() {
		var l entities.RecipientList
		var numbers []byte
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.Name, &numbers); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(numbers, &l.Numbers); err != nil {
			return nil, fmt.Errorf("decode numbers: %w", err)
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

func (r *ListRepository) Delete(ownerID int, id string) error {
	_, err := r.db.Exec(context.Background(),
		"DELETE FROM recipient_lists WHERE id = $1 AND owner_id = $2", id, ownerID)
	return err
}
