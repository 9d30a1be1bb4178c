package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/fundingcalc/jobs-engine/internal/errors"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

// DefinitionRepo provides database operations for job definitions.
type DefinitionRepo struct {
	DB     *sql.DB
	logger *slog.Logger
}

// NewDefinitionRepo creates a new DefinitionRepo with the given database connection.
func NewDefinitionRepo(db *sql.DB, logger *slog.Logger) *DefinitionRepo {
	return &DefinitionRepo{DB: db, logger: logger}
}

const definitionColumns = `
  id,
  timeout_seconds,
  supersede_on_enqueue,
  pre_completion_job_definition_ids,
  queue_name,
  topic_name,
  session_property_name,
  required_body_paths
`

// GetAll returns every job definition.
func (r *DefinitionRepo) GetAll(ctx context.Context) ([]*model.JobDefinition, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+definitionColumns+` FROM job_definitions ORDER BY id`)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("query job definitions: %w", err))
	}
	defer rows.Close()

	var definitions []*model.JobDefinition
	for rows.Next() {
		definition, scanErr := scanDefinition(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		definitions = append(definitions, definition)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job definitions: %w", err)
	}
	return definitions, nil
}

// GetByID returns one definition or ErrDefinitionNotFound.
func (r *DefinitionRepo) GetByID(ctx context.Context, id string) (*model.JobDefinition, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("definition id is required")
	}

	row := r.DB.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM job_definitions WHERE id = $1`, id)
	definition, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDefinitionNotFound
		}
		return nil, apperrors.MapDBError(fmt.Errorf("get job definition: %w", err))
	}
	return definition, nil
}

// Save upserts a definition by id.
func (r *DefinitionRepo) Save(ctx context.Context, definition *model.JobDefinition) error {
	if definition == nil {
		return errors.New("definition is required")
	}

	preCompletion, err := marshalStringList(definition.PreCompletionJobDefinitionIDs)
	if err != nil {
		return err
	}
	bodyPaths, err := marshalStringList(definition.RequiredBodyPaths)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO job_definitions (`+definitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET timeout_seconds = EXCLUDED.timeout_seconds,
		    supersede_on_enqueue = EXCLUDED.supersede_on_enqueue,
		    pre_completion_job_definition_ids = EXCLUDED.pre_completion_job_definition_ids,
		    queue_name = EXCLUDED.queue_name,
		    topic_name = EXCLUDED.topic_name,
		    session_property_name = EXCLUDED.session_property_name,
		    required_body_paths = EXCLUDED.required_body_paths
	`,
		definition.ID,
		int64(definition.Timeout/time.Second),
		definition.SupersedeExistingRunningJobOnEnqueue,
		preCompletion,
		definition.QueueName,
		definition.TopicName,
		definition.SessionPropertyName,
		bodyPaths,
	)
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("save job definition: %w", err))
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "job definition saved", "id", definition.ID)
	}
	return nil
}

func scanDefinition(row rowScanner) (*model.JobDefinition, error) {
	var (
		definition     model.JobDefinition
		timeoutSeconds int64
		preCompletion  []byte
		bodyPaths      []byte
	)

	err := row.Scan(
		&definition.ID,
		&timeoutSeconds,
		&definition.SupersedeExistingRunningJobOnEnqueue,
		&preCompletion,
		&definition.QueueName,
		&definition.TopicName,
		&definition.SessionPropertyName,
		&bodyPaths,
	)
	if err != nil {
		return nil, err
	}

	definition.Timeout = time.Duration(timeoutSeconds) * time.Second
	if definition.PreCompletionJobDefinitionIDs, err = unmarshalStringList(preCompletion); err != nil {
		return nil, fmt.Errorf("unmarshal pre-completion ids: %w", err)
	}
	if definition.RequiredBodyPaths, err = unmarshalStringList(bodyPaths); err != nil {
		return nil, fmt.Errorf("unmarshal required body paths: %w", err)
	}
	return &definition, nil
}

func marshalStringList(values []string) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return data, nil
}

func unmarshalStringList(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}
