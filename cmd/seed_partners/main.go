// seed_partners génère un script SQL pour peupler l'annuaire des
// partenaires (matricule fiscal -> raison sociale) à partir d'un export
// CSV du registre, séparateur ';', encodé en ISO-8859-1.
//
// Colonnes attendues: matricule;raison_sociale;ville;code_postal
//
// Usage: go run ./cmd/seed_partners [chemin/annuaire.csv]
// Par défaut cherche annuaire.csv dans le répertoire courant.
// Écrit: internal/infrastructure/postgres/migrations/002_seed_partners.sql
package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/aymenbha/fattoura-api/pkg/teif"
)

type partner struct {
	matricule  string
	name       string
	city       string
	postalCode string
}

func main() {
	csvPath := "annuaire.csv"
	if len(os.Args) > 1 {
		csvPath = os.Args[1]
	}
	f, err := os.Open(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ouvrir CSV: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	// Les exports du registre sont en Latin-1, pas en UTF-8.
	r := csv.NewReader(transform.NewReader(f, charmap.ISO8859_1.NewDecoder()))
	r.Comma = ';'
	r.FieldsPerRecord = -1

	var partners []partner
	skipped := 0
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Lire CSV: %v\n", err)
			os.Exit(1)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "matricule") {
			continue // en-tête
		}
		if len(record) < 2 {
			skipped++
			continue
		}
		m := teif.NormalizeMatricule(record[0])
		if err := teif.ValidateMatricule(m); err != nil {
			fmt.Fprintf(os.Stderr, "ligne %d: matricule %q ignoré: %v\n", line, record[0], err)
			skipped++
			continue
		}
		p := partner{matricule: m, name: strings.TrimSpace(record[1])}
		if p.name == "" {
			skipped++
			continue
		}
		if len(record) > 2 {
			p.city = strings.TrimSpace(record[2])
		}
		if len(record) > 3 {
			p.postalCode = strings.TrimSpace(record[3])
		}
		partners = append(partners, p)
	}

	if len(partners) == 0 {
		fmt.Fprintln(os.Stderr, "aucun partenaire valide dans le CSV")
		os.Exit(1)
	}

	moduleRoot := findModuleRoot()
	outPath := filepath.Join(moduleRoot, "internal", "infrastructure", "postgres", "migrations", "002_seed_partners.sql")
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Créer fichier: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	out.WriteString("-- Annuaire des partenaires (matricule fiscal tunisien)\n")
	out.WriteString("-- Généré depuis " + filepath.Base(csvPath) + " par cmd/seed_partners\n\n")
	out.WriteString("INSERT INTO partners_directory (matricule, name, city, postal_code) VALUES\n")
	for i, p := range partners {
		sep := ","
		if i == len(partners)-1 {
			sep = ""
		}
		fmt.Fprintf(out, "  ('%s', '%s', '%s', '%s')%s\n",
			p.matricule, escapeSQL(p.name), escapeSQL(p.city), escapeSQL(p.postalCode), sep)
	}
	out.WriteString("ON CONFLICT (matricule) DO UPDATE SET\n")
	out.WriteString("  name = EXCLUDED.name, city = EXCLUDED.city, postal_code = EXCLUDED.postal_code;\n")

	fmt.Printf("Généré %s: %d partenaires, %d lignes ignorées\n", outPath, len(partners), skipped)
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
