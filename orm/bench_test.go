package orm

import (
	"testing"

	"github.com/syssam/vorm/dialect"
)

var benchDialects = []string{dialect.SQLite, dialect.MySQL, dialect.Postgres}

func BenchmarkSelect_Simple(b *testing.B) {
	f := newFixture(b)
	for _, d := range benchDialects {
		db := NewDB(dialect.Nop(d))
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				db.Query(f.orders).Select("id", "code").Where(Eq("code", "A")).SQL()
			}
		})
	}
}

func BenchmarkSelect_WithJoins(b *testing.B) {
	f := newFixture(b)
	for _, d := range benchDialects {
		db := NewDB(dialect.Nop(d))
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				db.Query(f.items).
					Join("order").
					Select(Cols("t1", "id", "qty"), Cols("t2", "code")).
					Where(Eq("total", GT(100)), Eq("qty", In(1, 2, 3))).
					OrderBy("t2.id DESC").
					Limit(10).
					SQL()
			}
		})
	}
}

func BenchmarkSelect_Page(b *testing.B) {
	f := newFixture(b)
	for _, d := range benchDialects {
		db := NewDB(dialect.Nop(d))
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				db.Query(f.orders).Where(Eq("total", GT(0))).Page(3, 10).SQL()
			}
		})
	}
}

func BenchmarkUpdate_Join(b *testing.B) {
	f := newFixture(b)
	for _, d := range benchDialects {
		db := NewDB(dialect.Nop(d))
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				db.Query(f.items).Join("order").Where(Eq("total", 5)).Update(Set("qty", 0)).SQL()
			}
		})
	}
}

func BenchmarkDelete_Simple(b *testing.B) {
	f := newFixture(b)
	for _, d := range benchDialects {
		db := NewDB(dialect.Nop(d))
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				db.QueryAs(f.items, "").Where(Eq("qty", 0)).Delete().SQL()
			}
		})
	}
}
