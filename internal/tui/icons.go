package tui

// Icons — unique symbols in widely-supported Unicode blocks. Color is the
// primary signal; icon shape reinforces meaning.
const (
	IconShield  = "◆" // ◆ — diamond (brand marker)
	IconCheck   = "✔" // ✔ — heavy check mark (allowed)
	IconCross   = "✖" // ✖ — heavy multiplication X (error)
	IconWarning = "⚠" // ⚠ — warning sign
	IconInfo    = "ℹ" // ℹ — information source
	IconBlock   = "⊘" // ⊘ — circled division slash (denied)
	IconSquare  = "▪" // ▪ — small square (severity badge)
)
