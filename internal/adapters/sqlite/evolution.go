package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
)

func (s *Store) CreatePopulation(ctx context.Context, population *models.Population) error {
	_, err := s.exec(ctx, "create population",
		`INSERT INTO population (id, created_at) VALUES (?, ?)`,
		population.ID, toMicros(population.CreatedAt))
	return err
}

func (s *Store) GetPopulation(ctx context.Context, id string) (*models.Population, error) {
	var p models.Population
	var created int64
	err := s.conn(ctx).QueryRowContext(ctx, `SELECT id, created_at FROM population WHERE id = ?`, id).
		Scan(&p.ID, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPopulationNotFound, id)
		}
		return nil, fmt.Errorf("get population: %w", err)
	}
	p.CreatedAt = fromMicros(created)

	if p.Frameworks, err = s.ListFrameworks(ctx, id); err != nil {
		return nil, err
	}
	if p.Generations, err = s.loadGenerations(ctx, id, p.Frameworks); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPopulations(ctx context.Context, limit, offset int) ([]*models.Population, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT id, created_at FROM population ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list populations: %w", err)
	}
	defer rows.Close()

	var populations []*models.Population
	for rows.Next() {
		var p models.Population
		var created int64
		if err := rows.Scan(&p.ID, &created); err != nil {
			return nil, fmt.Errorf("scan population: %w", err)
		}
		p.CreatedAt = fromMicros(created)
		populations = append(populations, &p)
	}
	return populations, rows.Err()
}

const frameworkColumns = `id, name, code, thought_process, population_id, cluster_id, parent_id, directive,
	generation_index, debug_attempts, fitness, descriptor,
	ci_lower, ci_upper, ci_median, ci_sample_size, ci_confidence_level,
	test_ci_lower, test_ci_upper, test_ci_median, test_ci_sample_size, test_ci_confidence_level,
	created_at`

func (s *Store) CreateFramework(ctx context.Context, f *models.Framework) error {
	descriptor, err := encodeVector(f.Descriptor)
	if err != nil {
		return err
	}
	args := []any{
		f.ID, f.Name, f.Code, f.ThoughtProcess, f.PopulationID,
		nullString(f.ClusterID), nullString(f.ParentID), nullString(f.Directive),
		f.GenerationIndex, f.DebugAttempts, f.Fitness, descriptor,
	}
	args = append(args, ciArgs(f.CI)...)
	args = append(args, ciArgs(f.TestCI)...)
	args = append(args, toMicros(f.CreatedAt))

	_, err = s.exec(ctx, "create framework",
		`INSERT INTO framework (`+frameworkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	return err
}

func (s *Store) GetFramework(ctx context.Context, id string) (*models.Framework, error) {
	f, err := scanFramework(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+frameworkColumns+` FROM framework WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrFrameworkNotFound, id)
		}
		return nil, fmt.Errorf("get framework: %w", err)
	}
	return f, nil
}

func (s *Store) ListFrameworks(ctx context.Context, populationID string) ([]*models.Framework, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+frameworkColumns+` FROM framework WHERE population_id = ? ORDER BY created_at, id`,
		populationID)
	if err != nil {
		return nil, fmt.Errorf("list frameworks: %w", err)
	}
	defer rows.Close()

	var frameworks []*models.Framework
	for rows.Next() {
		f, err := scanFramework(rows)
		if err != nil {
			return nil, fmt.Errorf("scan framework: %w", err)
		}
		frameworks = append(frameworks, f)
	}
	return frameworks, rows.Err()
}

func (s *Store) UpdateTestCI(ctx context.Context, frameworkID string, ci models.ConfidenceInterval) error {
	res, err := s.exec(ctx, "update test ci",
		`UPDATE framework
		SET test_ci_lower = ?, test_ci_upper = ?, test_ci_median = ?,
			test_ci_sample_size = ?, test_ci_confidence_level = ?
		WHERE id = ?`,
		ci.Lower, ci.Upper, ci.Median, ci.SampleSize, ci.Level, frameworkID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrFrameworkNotFound, frameworkID)
	}
	return nil
}

func (s *Store) SaveGeneration(ctx context.Context, g *models.Generation) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.exec(ctx, "create generation",
			`INSERT INTO generation (id, population_id, idx, created_at) VALUES (?, ?, ?, ?)`,
			g.ID, g.PopulationID, g.Index, toMicros(g.CreatedAt)); err != nil {
			return err
		}
		for _, c := range g.Clusters {
			centroid, err := encodeVector(c.Centroid)
			if err != nil {
				return err
			}
			if _, err := s.exec(ctx, "create cluster",
				`INSERT INTO cluster (id, name, description, generation_id, population_id, centroid)
				VALUES (?, ?, ?, ?, ?, ?)`,
				c.ID, c.Name, c.Description, g.ID, g.PopulationID, centroid); err != nil {
				return err
			}
			for _, f := range c.Members {
				if _, err := s.exec(ctx, "add cluster member",
					`INSERT INTO cluster_member (cluster_id, framework_id) VALUES (?, ?)`,
					c.ID, f.ID); err != nil {
					return err
				}
				descriptor, err := encodeVector(f.Descriptor)
				if err != nil {
					return err
				}
				if _, err := s.exec(ctx, "assign cluster",
					`UPDATE framework SET cluster_id = ?, descriptor = ? WHERE id = ?`,
					c.ID, descriptor, f.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Store) ListGenerations(ctx context.Context, populationID string) ([]*models.Generation, error) {
	frameworks, err := s.ListFrameworks(ctx, populationID)
	if err != nil {
		return nil, err
	}
	return s.loadGenerations(ctx, populationID, frameworks)
}

func (s *Store) loadGenerations(ctx context.Context, populationID string, frameworks []*models.Framework) ([]*models.Generation, error) {
	byID := make(map[string]*models.Framework, len(frameworks))
	for _, f := range frameworks {
		byID[f.ID] = f
	}

	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT id, population_id, idx, created_at FROM generation WHERE population_id = ? ORDER BY idx`,
		populationID)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	var generations []*models.Generation
	genByID := make(map[string]*models.Generation)
	for rows.Next() {
		var g models.Generation
		var created int64
		if err := rows.Scan(&g.ID, &g.PopulationID, &g.Index, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		g.CreatedAt = fromMicros(created)
		generations = append(generations, &g)
		genByID[g.ID] = &g
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.conn(ctx).QueryContext(ctx,
		`SELECT id, name, description, generation_id, population_id, centroid
		FROM cluster WHERE population_id = ? ORDER BY generation_id, id`, populationID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	clusterByID := make(map[string]*models.Cluster)
	for rows.Next() {
		var c models.Cluster
		var centroid sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.GenerationID, &c.PopulationID, &centroid); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		if centroid.Valid {
			if err := json.Unmarshal([]byte(centroid.String), &c.Centroid); err != nil {
				rows.Close()
				return nil, fmt.Errorf("decode centroid: %w", err)
			}
		}
		clusterByID[c.ID] = &c
		if g, ok := genByID[c.GenerationID]; ok {
			g.Clusters = append(g.Clusters, &c)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.conn(ctx).QueryContext(ctx,
		`SELECT cm.cluster_id, cm.framework_id
		FROM cluster_member cm
		JOIN cluster c ON c.id = cm.cluster_id
		WHERE c.population_id = ?
		ORDER BY cm.cluster_id, cm.framework_id`, populationID)
	if err != nil {
		return nil, fmt.Errorf("list cluster members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var clusterID, frameworkID string
		if err := rows.Scan(&clusterID, &frameworkID); err != nil {
			return nil, fmt.Errorf("scan cluster member: %w", err)
		}
		if c, ok := clusterByID[clusterID]; ok {
			if f, ok := byID[frameworkID]; ok {
				c.Members = append(c.Members, f)
			}
		}
	}
	return generations, rows.Err()
}

type ciColumns struct {
	Lower, Upper, Median, Level sql.NullFloat64
	SampleSize                  sql.NullInt64
}

func (c ciColumns) interval() *models.ConfidenceInterval {
	if !c.Median.Valid {
		return nil
	}
	return &models.ConfidenceInterval{
		Lower:      c.Lower.Float64,
		Upper:      c.Upper.Float64,
		Median:     c.Median.Float64,
		SampleSize: int(c.SampleSize.Int64),
		Level:      c.Level.Float64,
	}
}

func ciArgs(ci *models.ConfidenceInterval) []any {
	if ci == nil {
		return []any{nil, nil, nil, nil, nil}
	}
	return []any{ci.Lower, ci.Upper, ci.Median, ci.SampleSize, ci.Level}
}

func scanFramework(row rowScanner) (*models.Framework, error) {
	var f models.Framework
	var clusterID, parentID, directive, descriptor sql.NullString
	var ci, testCI ciColumns
	var created int64

	err := row.Scan(
		&f.ID, &f.Name, &f.Code, &f.ThoughtProcess, &f.PopulationID, &clusterID, &parentID, &directive,
		&f.GenerationIndex, &f.DebugAttempts, &f.Fitness, &descriptor,
		&ci.Lower, &ci.Upper, &ci.Median, &ci.SampleSize, &ci.Level,
		&testCI.Lower, &testCI.Upper, &testCI.Median, &testCI.SampleSize, &testCI.Level,
		&created,
	)
	if err != nil {
		return nil, err
	}
	f.ClusterID = clusterID.String
	f.ParentID = parentID.String
	f.Directive = directive.String
	if descriptor.Valid {
		if err := json.Unmarshal([]byte(descriptor.String), &f.Descriptor); err != nil {
			return nil, fmt.Errorf("decode descriptor: %w", err)
		}
	}
	f.CI = ci.interval()
	f.TestCI = testCI.interval()
	f.CreatedAt = fromMicros(created)
	return &f, nil
}

// encodeVector stores float slices as JSON text; nil and empty map to NULL.
func encodeVector[T float32 | float64](v []T) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode vector: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
