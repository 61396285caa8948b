package encoding

// undefined marks the code points CP1252 leaves unassigned
const undefined rune = -1

// win1252 maps bytes 0x80-0xFF to Unicode, indexed by b-0x80.
// Taken from http://unicode.org/Public/MAPPINGS/VENDORS/MICSFT/WINDOWS/CP1252.TXT
var win1252 = [128]rune{
	// 0x80
	0x20AC, undefined, 0x201A, 0x0192, 0x201E, 0x2026, 0x2020, 0x2021,
	0x02C6, 0x2030, 0x0160, 0x2039, 0x0152, undefined, 0x017D, undefined,
	// 0x90
	undefined, 0x2018, 0x2019, 0x201C, 0x201D, 0x2022, 0x2013, 0x2014,
	0x02DC, 0x2122, 0x0161, 0x203A, 0x0153, undefined, 0x017E, 0x0178,
	// 0xA0
	0x00A0, 0x00A1, 0x00A2, 0x00A3, 0x00A4, 0x00A5, 0x00A6, 0x00A7,
	0x00A8, 0x00A9, 0x00AA, 0x00AB, 0x00AC, 0x00AD, 0x00AE, 0x00AF,
	// 0xB0
	0x00B0, 0x00B1, 0x00B2, 0x00B3, 0x00B4, 0x00B5, 0x00B6, 0x00B7,
	0x00B8, 0x00B9, 0x00BA, 0x00BB, 0x00BC, 0x00BD, 0x00BE, 0x00BF,
	// 0xC0
	0x00C0, 0x00C1, 0x00C2, 0x00C3, 0x00C4, 0x00C5, 0x00C6, 0x00C7,
	0x00C8, 0x00C9, 0x00CA, 0x00CB, 0x00CC, 0x00CD, 0x00CE, 0x00CF,
	// 0xD0
	0x00D0, 0x00D1, 0x00D2, 0x00D3, 0x00D4, 0x00D5, 0x00D6, 0x00D7,
	0x00D8, 0x00D9, 0x00DA, 0x00DB, 0x00DC, 0x00DD, 0x00DE, 0x00DF,
	// 0xE0
	0x00E0, 0x00E1, 0x00E2, 0x00E3, 0x00E4, 0x00E5, 0x00E6, 0x00E7,
	0x00E8, 0x00E9, 0x00EA, 0x00EB, 0x00EC, 0x00ED, 0x00EE, 0x00EF,
	// 0xF0
	0x00F0, 0x00F1, 0x00F2, 0x00F3, 0x00F4, 0x00F5, 0x00F6, 0x00F7,
	0x00F8, 0x00F9, 0x00FA, 0x00FB, 0x00FC, 0x00FD, 0x00FE, 0x00FF,
}

// legacyRune returns the character a single Windows-1252 byte stands for.
// ok is false when the byte is unassigned in the code page.
func legacyRune(b byte) (r rune, ok bool) {
	if b < 0x80 {
		return rune(b), true
	}
	r = win1252[b-0x80]
	return r, r != undefined
}

// sequenceLen classifies a UTF-8 lead byte by its high-order bits.
// It returns 0 when b cannot start a multi-byte sequence.
func sequenceLen(b byte) int {
	switch {
	case b>>5 == 0x06: // 110xxxxx
		return 2
	case b>>4 == 0x0E: // 1110xxxx
		return 3
	case b>>3 == 0x1E: // 11110xxx
		return 4
	default:
		return 0
	}
}
