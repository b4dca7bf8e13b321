package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pjk0007/salesflow-sub000/internal/models"
)

type TemplateLinkRepository struct {
	db *sql.DB
}

func NewTemplateLinkRepository(db *sql.DB) *TemplateLinkRepository {
	return &TemplateLinkRepository{db: db}
}

// Create validates and inserts a template link. Validation happens here,
// at save time, so the trigger engine and worker never see a malformed
// condition or repeat config that this process wrote.
func (r *TemplateLinkRepository) Create(link *models.TemplateLink) error {
	if err := link.Validate(); err != nil {
		return fmt.Errorf("invalid template link: %w", err)
	}

	link.ID = uuid.New().String()
	link.CreatedAt = time.Now().UTC()
	link.UpdatedAt = link.CreatedAt

	mappings, condition, repeat, err := marshalLinkColumns(link)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO template_links (id, org_id, partition_id, name, recipient_field,
			variable_mappings, trigger_type, trigger_condition, repeat_config, is_active,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		link.ID, link.OrgID, link.PartitionID, link.Name, link.RecipientField,
		mappings, string(link.TriggerType), condition, repeat, link.IsActive,
		link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template link: %w", err)
	}
	return nil
}

// Update replaces the mutable configuration of a link.
func (r *TemplateLinkRepository) Update(link *models.TemplateLink) error {
	if err := link.Validate(); err != nil {
		return fmt.Errorf("invalid template link: %w", err)
	}

	link.UpdatedAt = time.Now().UTC()

	mappings, condition, repeat, err := marshalLinkColumns(link)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		UPDATE template_links SET name = ?, recipient_field = ?, variable_mappings = ?,
			trigger_type = ?, trigger_condition = ?, repeat_config = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		link.Name, link.RecipientField, mappings,
		string(link.TriggerType), condition, repeat, link.IsActive, link.UpdatedAt,
		link.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template link: %w", err)
	}
	return nil
}

// SetActive flips the active flag. Deactivating stops new enrollments
// immediately; in-flight queue entries resolve to cancelled at claim time.
func (r *TemplateLinkRepository) SetActive(id string, active bool) error {
	_, err := r.db.Exec(`UPDATE template_links SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id)
	return err
}

// GetByID returns a link, or (nil, nil) when it does not exist.
func (r *TemplateLinkRepository) GetByID(id string) (*models.TemplateLink, error) {
	row := r.db.QueryRow(`
		SELECT id, org_id, partition_id, name, recipient_field, variable_mappings,
			trigger_type, trigger_condition, repeat_config, is_active, created_at, updated_at
		FROM template_links WHERE id = ?`, id)

	link, err := scanLink(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return link, err
}

// Delete removes a link; its queue entries cascade.
func (r *TemplateLinkRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM template_links WHERE id = ?", id)
	return err
}

// ListActiveByPartition returns the active links the trigger engine must
// evaluate for one record mutation.
func (r *TemplateLinkRepository) ListActiveByPartition(partitionID string, trigger models.TriggerType) ([]models.TemplateLink, error) {
	rows, err := r.db.Query(`
		SELECT id, org_id, partition_id, name, recipient_field, variable_mappings,
			trigger_type, trigger_condition, repeat_config, is_active, created_at, updated_at
		FROM template_links
		WHERE partition_id = ? AND trigger_type = ? AND is_active = 1
		ORDER BY created_at`,
		partitionID, string(trigger))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLinks(rows)
}

// List returns links matching the filter.
func (r *TemplateLinkRepository) List(filter models.TemplateLinkFilter) ([]models.TemplateLink, error) {
	query := `
		SELECT id, org_id, partition_id, name, recipient_field, variable_mappings,
			trigger_type, trigger_condition, repeat_config, is_active, created_at, updated_at
		FROM template_links WHERE 1=1`
	args := []any{}

	if filter.PartitionID != "" {
		query += " AND partition_id = ?"
		args = append(args, filter.PartitionID)
	}
	if filter.TriggerType != "" {
		query += " AND trigger_type = ?"
		args = append(args, string(filter.TriggerType))
	}
	if filter.ActiveOnly {
		query += " AND is_active = 1"
	}

	query += " ORDER BY created_at"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLinks(rows)
}

func marshalLinkColumns(link *models.TemplateLink) (mappings, condition, repeat any, err error) {
	if len(link.VariableMappings) > 0 {
		raw, err := json.Marshal(link.VariableMappings)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal variable mappings: %w", err)
		}
		mappings = string(raw)
	}
	if link.TriggerCondition != nil {
		raw, err := json.Marshal(link.TriggerCondition)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal trigger condition: %w", err)
		}
		condition = string(raw)
	}
	if link.RepeatConfig != nil {
		raw, err := json.Marshal(link.RepeatConfig)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal repeat config: %w", err)
		}
		repeat = string(raw)
	}
	return mappings, condition, repeat, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*models.TemplateLink, error) {
	link := &models.TemplateLink{}
	var triggerType string
	var mappings, condition, repeat sql.NullString

	err := row.Scan(&link.ID, &link.OrgID, &link.PartitionID, &link.Name, &link.RecipientField,
		&mappings, &triggerType, &condition, &repeat, &link.IsActive, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return nil, err
	}

	link.TriggerType = models.TriggerType(triggerType)

	if mappings.Valid && mappings.String != "" {
		if err := json.Unmarshal([]byte(mappings.String), &link.VariableMappings); err != nil {
			return nil, fmt.Errorf("template link %s: failed to parse variable mappings: %w", link.ID, err)
		}
	}
	if condition.Valid && condition.String != "" {
		link.TriggerCondition = &models.Condition{}
		if err := json.Unmarshal([]byte(condition.String), link.TriggerCondition); err != nil {
			return nil, fmt.Errorf("template link %s: failed to parse trigger condition: %w", link.ID, err)
		}
	}
	if repeat.Valid && repeat.String != "" {
		link.RepeatConfig = &models.RepeatConfig{}
		if err := json.Unmarshal([]byte(repeat.String), link.RepeatConfig); err != nil {
			return nil, fmt.Errorf("template link %s: failed to parse repeat config: %w", link.ID, err)
		}
	}
	return link, nil
}

func collectLinks(rows *sql.Rows) ([]models.TemplateLink, error) {
	links := []models.TemplateLink{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}
