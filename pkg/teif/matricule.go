package teif

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Alphabet de la clé de contrôle du matricule fiscal tunisien.
// La clé est la lettre d'indice (numéro % 23) dans cet alphabet
// (les lettres I, O et U sont exclues pour éviter les confusions).
const matriculeKeyAlphabet = "ABCDEFGHJKLMNPQRSTVWXYZ"

// Lettres admises pour le code TVA et le code catégorie du matricule complet
// (forme longue NNNNNNNC/T/E/SSS utilisée par TTN, ex: 0736202XAM000).
var (
	matriculeTVACodes      = map[byte]bool{'A': true, 'B': true, 'D': true, 'N': true, 'P': true}
	matriculeCategoryCodes = map[byte]bool{'C': true, 'E': true, 'M': true, 'N': true, 'P': true}
)

// NormalizeMatricule supprime séparateurs et espaces et met en majuscules.
// "0736202X/A/M/000" et "0736202xam000" donnent tous deux "0736202XAM000".
func NormalizeMatricule(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// ValidateMatricule valide un matricule fiscal tunisien, sous forme courte
// (7 chiffres + clé) ou longue (7 chiffres + clé + code TVA + code catégorie
// + 3 chiffres d'établissement). Les séparateurs « / » sont tolérés.
func ValidateMatricule(s string) error {
	m := NormalizeMatricule(s)
	if len(m) < 8 {
		return fmt.Errorf("teif: matricule fiscal trop court: %d caractères, 8 minimum", len(m))
	}
	digits := m[:7]
	n, err := strconv.Atoi(digits)
	if err != nil {
		return fmt.Errorf("teif: les 7 premiers caractères du matricule doivent être des chiffres: %q", digits)
	}
	expected := matriculeKeyAlphabet[n%len(matriculeKeyAlphabet)]
	if m[7] != expected {
		return fmt.Errorf("teif: clé de contrôle du matricule invalide: attendu %c, reçu %c", expected, m[7])
	}
	if len(m) == 8 {
		return nil
	}
	if len(m) != 13 {
		return fmt.Errorf("teif: matricule complet attendu sur 13 caractères, reçu %d", len(m))
	}
	if !matriculeTVACodes[m[8]] {
		return fmt.Errorf("teif: code TVA du matricule invalide: %c", m[8])
	}
	if !matriculeCategoryCodes[m[9]] {
		return fmt.Errorf("teif: code catégorie du matricule invalide: %c", m[9])
	}
	for i := 10; i < 13; i++ {
		if m[i] < '0' || m[i] > '9' {
			return fmt.Errorf("teif: numéro d'établissement invalide: %q", m[10:])
		}
	}
	return nil
}

// ComputeMatriculeKey calcule la clé de contrôle des 7 chiffres du matricule.
// Utile pour compléter un matricule saisi sans sa clé.
func ComputeMatriculeKey(digits string) (byte, error) {
	d := NormalizeMatricule(digits)
	if len(d) < 7 {
		return 0, fmt.Errorf("teif: 7 chiffres requis pour calculer la clé, reçu %d", len(d))
	}
	n, err := strconv.Atoi(d[:7])
	if err != nil {
		return 0, fmt.Errorf("teif: chiffres du matricule invalides: %q", d[:7])
	}
	return matriculeKeyAlphabet[n%len(matriculeKeyAlphabet)], nil
}
