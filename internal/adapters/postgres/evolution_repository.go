package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
	"github.com/pgvector/pgvector-go"
)

type EvolutionRepository struct {
	BaseRepository
}

func NewEvolutionRepository(pool *pgxpool.Pool) *EvolutionRepository {
	return &EvolutionRepository{
		BaseRepository: NewBaseRepository(pool),
	}
}

func (r *EvolutionRepository) CreatePopulation(ctx context.Context, population *models.Population) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.exec(ctx, "create population",
		`INSERT INTO population (id, created_at) VALUES ($1, $2)`,
		population.ID, population.CreatedAt)
	return err
}

func (r *EvolutionRepository) GetPopulation(ctx context.Context, id string) (*models.Population, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var p models.Population
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, created_at FROM population WHERE id = $1`, id).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if checkNoRows(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPopulationNotFound, id)
		}
		return nil, fmt.Errorf("get population: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()

	p.Frameworks, err = r.ListFrameworks(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Generations, err = r.loadGenerations(ctx, id, p.Frameworks)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *EvolutionRepository) ListPopulations(ctx context.Context, limit, offset int) ([]*models.Population, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, created_at FROM population ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list populations: %w", err)
	}
	defer rows.Close()

	var populations []*models.Population
	for rows.Next() {
		var p models.Population
		if err := rows.Scan(&p.ID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan population: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		populations = append(populations, &p)
	}
	return populations, rows.Err()
}

const frameworkColumns = `id, name, code, thought_process, population_id, cluster_id, parent_id, directive,
	generation_index, debug_attempts, fitness, descriptor,
	ci_lower, ci_upper, ci_median, ci_sample_size, ci_confidence_level,
	test_ci_lower, test_ci_upper, test_ci_median, test_ci_sample_size, test_ci_confidence_level,
	created_at`

func (r *EvolutionRepository) CreateFramework(ctx context.Context, f *models.Framework) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO framework (` + frameworkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	args := []any{
		f.ID, f.Name, f.Code, f.ThoughtProcess, f.PopulationID,
		nullString(f.ClusterID), nullString(f.ParentID), nullString(f.Directive),
		f.GenerationIndex, f.DebugAttempts, f.Fitness, descriptorArg(f.Descriptor),
	}
	args = append(args, ciArgs(f.CI)...)
	args = append(args, ciArgs(f.TestCI)...)
	args = append(args, f.CreatedAt)

	_, err := r.exec(ctx, "create framework", query, args...)
	return err
}

func descriptorArg(d []float32) *pgvector.Vector {
	if len(d) == 0 {
		return nil
	}
	v := pgvector.NewVector(d)
	return &v
}

func (r *EvolutionRepository) GetFramework(ctx context.Context, id string) (*models.Framework, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	f, err := scanFramework(r.conn(ctx).QueryRow(ctx, `SELECT `+frameworkColumns+` FROM framework WHERE id = $1`, id))
	if err != nil {
		if checkNoRows(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrFrameworkNotFound, id)
		}
		return nil, fmt.Errorf("get framework: %w", err)
	}
	return f, nil
}

func (r *EvolutionRepository) ListFrameworks(ctx context.Context, populationID string) ([]*models.Framework, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+frameworkColumns+` FROM framework WHERE population_id = $1 ORDER BY created_at, id`,
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

func scanFramework(row pgx.Row) (*models.Framework, error) {
	var f models.Framework
	var clusterID, parentID, directive sql.NullString
	var descriptor *pgvector.Vector
	var ci, testCI ciColumns

	err := row.Scan(
		&f.ID, &f.Name, &f.Code, &f.ThoughtProcess, &f.PopulationID, &clusterID, &parentID, &directive,
		&f.GenerationIndex, &f.DebugAttempts, &f.Fitness, &descriptor,
		&ci.Lower, &ci.Upper, &ci.Median, &ci.SampleSize, &ci.Level,
		&testCI.Lower, &testCI.Upper, &testCI.Median, &testCI.SampleSize, &testCI.Level,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.ClusterID = getString(clusterID)
	f.ParentID = getString(parentID)
	f.Directive = getString(directive)
	if descriptor != nil {
		f.Descriptor = descriptor.Slice()
	}
	f.CI = ci.interval()
	f.TestCI = testCI.interval()
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}

func (r *EvolutionRepository) UpdateTestCI(ctx context.Context, frameworkID string, ci models.ConfidenceInterval) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE framework
		SET test_ci_lower = $2, test_ci_upper = $3, test_ci_median = $4,
			test_ci_sample_size = $5, test_ci_confidence_level = $6
		WHERE id = $1`

	tag, err := r.exec(ctx, "update test ci", query, frameworkID, ci.Lower, ci.Upper, ci.Median, ci.SampleSize, ci.Level)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrFrameworkNotFound, frameworkID)
	}
	return nil
}

func (r *EvolutionRepository) SaveGeneration(ctx context.Context, g *models.Generation) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.inTx(ctx, func(ctx context.Context) error {
		conn := r.conn(ctx)
		if _, err := conn.Exec(ctx,
			`INSERT INTO generation (id, population_id, idx, created_at) VALUES ($1, $2, $3, $4)`,
			g.ID, g.PopulationID, g.Index, g.CreatedAt); err != nil {
			return mapWriteError("create generation", err)
		}

		for _, c := range g.Clusters {
			if _, err := conn.Exec(ctx,
				`INSERT INTO cluster (id, name, description, generation_id, population_id, centroid)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				c.ID, c.Name, c.Description, g.ID, g.PopulationID, c.Centroid); err != nil {
				return mapWriteError("create cluster", err)
			}
			for _, f := range c.Members {
				if _, err := conn.Exec(ctx,
					`INSERT INTO cluster_member (cluster_id, framework_id) VALUES ($1, $2)`,
					c.ID, f.ID); err != nil {
					return mapWriteError("add cluster member", err)
				}
				if _, err := conn.Exec(ctx,
					`UPDATE framework SET cluster_id = $2, descriptor = $3 WHERE id = $1`,
					f.ID, c.ID, descriptorArg(f.Descriptor)); err != nil {
					return mapWriteError("assign cluster", err)
				}
			}
		}
		return nil
	})
}

func (r *EvolutionRepository) ListGenerations(ctx context.Context, populationID string) ([]*models.Generation, error) {
	frameworks, err := r.ListFrameworks(ctx, populationID)
	if err != nil {
		return nil, err
	}
	return r.loadGenerations(ctx, populationID, frameworks)
}

// loadGenerations rebuilds generations with their clusters and members,
// resolving members against the given frameworks.
func (r *EvolutionRepository) loadGenerations(ctx context.Context, populationID string, frameworks []*models.Framework) ([]*models.Generation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	byID := make(map[string]*models.Framework, len(frameworks))
	for _, f := range frameworks {
		byID[f.ID] = f
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, population_id, idx, created_at FROM generation WHERE population_id = $1 ORDER BY idx`,
		populationID)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	var generations []*models.Generation
	genByID := make(map[string]*models.Generation)
	for rows.Next() {
		var g models.Generation
		if err := rows.Scan(&g.ID, &g.PopulationID, &g.Index, &g.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		g.CreatedAt = g.CreatedAt.UTC()
		generations = append(generations, &g)
		genByID[g.ID] = &g
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.conn(ctx).Query(ctx,
		`SELECT id, name, description, generation_id, population_id, centroid
		FROM cluster WHERE population_id = $1 ORDER BY generation_id, id`,
		populationID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	clusterByID := make(map[string]*models.Cluster)
	for rows.Next() {
		var c models.Cluster
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.GenerationID, &c.PopulationID, &c.Centroid); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan cluster: %w", err)
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

	rows, err = r.conn(ctx).Query(ctx,
		`SELECT cm.cluster_id, cm.framework_id
		FROM cluster_member cm
		JOIN cluster c ON c.id = cm.cluster_id
		WHERE c.population_id = $1
		ORDER BY cm.cluster_id, cm.framework_id`,
		populationID)
	if err != nil {
		return nil, fmt.Errorf("list cluster members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var clusterID, frameworkID string
		if err := rows.Scan(&clusterID, &frameworkID); err != nil {
			return nil, fmt.Errorf("scan cluster member: %w", err)
		}
		c, ok := clusterByID[clusterID]
		if !ok {
			continue
		}
		if f, ok := byID[frameworkID]; ok {
			c.Members = append(c.Members, f)
		}
	}
	return generations, rows.Err()
}
