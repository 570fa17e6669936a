package domain

import "math/rand"

// WordPair 是一组游戏词：citizen 看到 Normal，undercover 看到 Undercover。
type WordPair struct {
	Normal     string
	Undercover string
}

// defaultTheme 在所选主题的词池为空时作为兜底。
const defaultTheme = "argentina"

// wordCatalog 按主题组织的词池。
var wordCatalog = map[string][]WordPair{
	"argentina": {
		{"Mate", "Té"},
		{"Fernet", "Coca"},
		{"Asado", "Parrilla"},
		{"Empanada", "Tarta"},
		{"Dulce de Leche", "Miel"},
		{"Choripán", "Pancho"},
		{"Tango", "Baile"},
		{"Diego", "Messi"},
		{"Gaucho", "Vaquero"},
		{"Colectivo", "Bondi"},
		{"Che", "Vos"},
		{"Ñoquis", "Papas"},
		{"Alfajor", "Oreo"},
		{"Birome", "Lapicera"},
		{"Pibe", "Pendejo"},
	},
	"cordoba": {
		{"Cuarteto", "Cumbia"},
		{"Fernet con Coca", "Cuba Libre"},
		{"Peperina", "Menta"},
		{"La Mona", "Cantante"},
		{"Fariña", "Harina"},
		{"Culiau", "Amigo"},
		{"Quesillo", "Queso"},
		{"Sierras", "Montañas"},
		{"Marquesita", "Pan"},
		{"Patio de la Cañada", "Plaza"},
		{"Caracol", "Shopping"},
		{"Patio Olmos", "Mall"},
		{"River", "Instituto"},
	},
	"comida": {
		{"Pizza", "Focaccia"},
		{"Milanesa", "Suprema"},
		{"Ravioles", "Ñoquis"},
		{"Locro", "Guiso"},
		{"Humita", "Tamal"},
		{"Torta Frita", "Sopaipilla"},
		{"Chimichurri", "Salsa Verde"},
		{"Carbonada", "Puchero"},
		{"Sorrentinos", "Canelones"},
		{"Fugazzeta", "Pizza con Cebolla"},
	},
	"futbol": {
		{"Boca", "River"},
		{"Messi", "Ronaldo"},
		{"Copa Libertadores", "Champions"},
		{"Pelota", "Balón"},
		{"Cancha", "Estadio"},
		{"Árbitro", "Juez"},
		{"Gol", "Tanto"},
		{"Penal", "Tiro Libre"},
		{"Offside", "Adelantado"},
		{"Gambeta", "Bicicleta"},
	},
}

// KnownTheme 检查主题 ID 是否存在于词库中。
func KnownTheme(id string) bool {
	_, ok := wordCatalog[id]
	return ok
}

// Themes 返回词库中全部可选主题 ID。
func Themes() []string {
	ids := make([]string, 0, len(wordCatalog))
	for id := range wordCatalog {
		ids = append(ids, id)
	}
	return ids
}

// PickWordPair 从所选主题合并后的词池中均匀抽取一对词。
// 如果所选主题都没有词（或列表为空），回退到默认主题。
func PickWordPair(themes []string, rng *rand.Rand) WordPair {
	pool := make([]WordPair, 0, 32)
	for _, id := range themes {
		pool = append(pool, wordCatalog[id]...)
	}
	if len(pool) == 0 {
		pool = append(pool, wordCatalog[defaultTheme]...)
	}
	return pool[rng.Intn(len(pool))]
}

// roomCodeAlphabet 去掉了易混淆字符（O/0、I/1）。
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RoomCodeLength 是房间码的固定长度。
const RoomCodeLength = 4

// NewRoomCode 生成一个 4 位房间码。唯一性由调用方对存储做检查保证。
func NewRoomCode(rng *rand.Rand) string {
	b := make([]byte, RoomCodeLength)
	for i := range b {
		b[i] = roomCodeAlphabet[rng.Intn(len(roomCodeAlphabet))]
	}
	return string(b)
}

// ValidRoomCode 检查房间码格式：长度固定且只含字母表内字符。
func ValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		found := false
		for j := 0; j < len(roomCodeAlphabet); j++ {
			if code[i] == roomCodeAlphabet[j] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
