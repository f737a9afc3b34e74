package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/imo-scraper/internal/entity"
)

type GazetteerRepoImpl struct {
	db *pgxpool.Pool
}

func NewGazetteerRepo(db *pgxpool.Pool) *GazetteerRepoImpl {
	return &GazetteerRepoImpl{db: db}
}

// Load reads the three levels in id order and nests them.
func (r *GazetteerRepoImpl) Load(ctx context.Context) (*entity.Gazetteer, error) {
	g := &entity.Gazetteer{}
	districtIdx := make(map[int]int)
	countyIdx := make(map[int][2]int)

	rows, err := r.db.Query(ctx, `SELECT id, name FROM districts ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("load districts: %w", err)
	}
	for rows.Next() {
		var d entity.District
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			rows.Close()
			return nil, err
		}
		districtIdx[d.ID] = len(g.Districts)
		g.Districts = append(g.Districts, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Query(ctx, `SELECT id, district_id, name FROM counties ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("load counties: %w", err)
	}
	for rows.Next() {
		var c entity.County
		if err := rows.Scan(&c.ID, &c.DistrictID, &c.Name); err != nil {
			rows.Close()
			return nil, err
		}
		di, ok := districtIdx[c.DistrictID]
		if !ok {
			continue
		}
		d := &g.Districts[di]
		countyIdx[c.ID] = [2]int{di, len(d.Counties)}
		d.Counties = append(d.Counties, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Query(ctx, `SELECT id, county_id, name FROM parishes ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("load parishes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p entity.Parish
		if err := rows.Scan(&p.ID, &p.CountyID, &p.Name); err != nil {
			return nil, err
		}
		at, ok := countyIdx[p.CountyID]
		if !ok {
			continue
		}
		c := &g.Districts[at[0]].Counties[at[1]]
		c.Parishes = append(c.Parishes, p)
	}
	return g, rows.Err()
}

// Seed writes g into the gazetteer tables in one transaction, keeping rows
// that already exist.
func (r *GazetteerRepoImpl) Seed(ctx context.Context, g *entity.Gazetteer) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, d := range g.Districts {
		batch.Queue(`INSERT INTO districts (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, d.ID, d.Name)
		for _, c := range d.Counties {
			batch.Queue(`INSERT INTO counties (id, district_id, name) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
				c.ID, d.ID, c.Name)
			for _, p := range c.Parishes {
				batch.Queue(`INSERT INTO parishes (id, county_id, name) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
					p.ID, c.ID, p.Name)
			}
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed gazetteer: %w", err)
	}
	return tx.Commit(ctx)
}
