package retrieval

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// BoostRule is one signed score adjustment. The rule fires when any trigger
// token appears in the request text and any record token (defaulting to the
// triggers) appears in the record's search text.
type BoostRule struct {
	Name         string   `yaml:"name"`
	Triggers     []string `yaml:"triggers"`
	RecordTokens []string `yaml:"record_tokens"`
	Delta        float64  `yaml:"delta"`
}

// SynonymRule expands the request text before embedding when any trigger
// token is present. Purely textual, no learning.
type SynonymRule struct {
	Triggers  []string `yaml:"triggers"`
	Expansion string   `yaml:"expansion"`
}

// Config tunes the similarity engine. Magnitudes are deliberately
// configurable: the defaults mirror empirically tuned constants, not
// structural properties.
type Config struct {
	// MinScore filters out references with an adjusted score below it.
	MinScore float64 `yaml:"min_score"`

	// KeywordScoreCap bounds keyword-fallback scores so they never outrank
	// embedding-backed results.
	KeywordScoreCap float64 `yaml:"keyword_score_cap"`

	// ModeAgreementBoost / ModeMismatchPenalty adjust records whose stored
	// grouping mode matches, or contradicts, the mode the request asks for.
	ModeAgreementBoost  float64 `yaml:"mode_agreement_boost"`
	ModeMismatchPenalty float64 `yaml:"mode_mismatch_penalty"`

	// LevelMatchBoost rewards records whose education level matches a level
	// mentioned in the request.
	LevelMatchBoost float64 `yaml:"level_match_boost"`

	Boosts   []BoostRule   `yaml:"boosts"`
	Synonyms []SynonymRule `yaml:"synonyms"`
}

// DefaultConfig returns the default engine tuning.
func DefaultConfig() Config {
	return Config{
		MinScore:            0.2,
		KeywordScoreCap:     0.8,
		ModeAgreementBoost:  0.05,
		ModeMismatchPenalty: 0.05,
		LevelMatchBoost:     0.05,
		Boosts: []BoostRule{
			{Name: "fracciones", Triggers: []string{"fracciones", "fracción"}, Delta: 0.15},
			{Name: "células", Triggers: []string{"células", "célula"}, Delta: 0.15},
			{Name: "supermercado", Triggers: []string{"supermercado", "compras"}, RecordTokens: []string{"supermercado", "tienda", "compras"}, Delta: 0.15},
			{Name: "piratas", Triggers: []string{"piratas", "tesoro"}, Delta: 0.15},
			{Name: "mural", Triggers: []string{"mural"}, Delta: 0.10},
			{Name: "tienda", Triggers: []string{"tienda"}, Delta: 0.10},
			{Name: "mapas", Triggers: []string{"mapas", "mapa"}, Delta: 0.10},
		},
		Synonyms: []SynonymRule{
			{Triggers: []string{"matemáticas", "matemática", "números", "fracciones", "sumas"}, Expansion: "competencias matemáticas cálculo operaciones"},
			{Triggers: []string{"ciencias", "naturales", "experimentos", "células"}, Expansion: "ciencias naturales investigación método científico"},
			{Triggers: []string{"lengua", "lectura", "escritura", "textos"}, Expansion: "lengua castellana comunicación textual"},
			{Triggers: []string{"geografía", "españa", "comunidades", "mapas"}, Expansion: "geografía territorio español localización"},
			{Triggers: []string{"colaborativo", "grupos", "equipo", "parejas"}, Expansion: "trabajo colaborativo grupos cooperativo"},
			{Triggers: []string{"individual", "personal", "autónomo"}, Expansion: "trabajo individual autónomo personal"},
			{Triggers: []string{"creativo", "arte", "diseño", "mural"}, Expansion: "creatividad artística diseño visual"},
			{Triggers: []string{"supermercado", "tienda", "compras", "dinero"}, Expansion: "supermercado comercio dinero transacciones"},
		},
	}
}

// LoadConfig reads engine tuning from a YAML file, filling unset fields with
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read retrieval config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse retrieval config %s", path)
	}

	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultConfig().MinScore
	}
	if cfg.KeywordScoreCap <= 0 {
		cfg.KeywordScoreCap = DefaultConfig().KeywordScoreCap
	}

	return cfg, nil
}
