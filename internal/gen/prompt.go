package gen

import (
	"github.com/sawanori/goodfoodphotoAI/internal/types"
)

// basePrompt 料理写真リライト用の固定指示
// 料理そのものは変えず、照明・質感・背景だけを改善させる
const basePrompt = `この料理写真をベースに、料理そのものは変えずに、より美味しそうに見える写真を4パターン作ってください。

条件:
- 料理の形や盛り付けは維持してください（別の料理にしない）
- 照明を改善してください（自然光または柔らかいトップライトなど）
- ツヤと質感を上げてください（油・ソース・水分の立体感）
- 背景はうるさくしないでください（料理が主役）
- 文字やロゴは入れないでください
- 写真風でリアルに仕上げてください`

var styleModifiers = map[types.Style]string{
	types.StyleNatural: "自然な色味と柔らかい光で、温かみのある雰囲気にしてください。",
	types.StyleBright:  "明るく鮮やかな色で、活気のある印象にしてください。",
	types.StyleMoody:   "落ち着いたトーンと繊細な影で、高級感のある雰囲気にしてください。",
}

// Prompt builds the generation instruction for a style. Unknown styles fall
// back to natural.
func Prompt(style types.Style) string {
	mod, ok := styleModifiers[style]
	if !ok {
		mod = styleModifiers[types.StyleNatural]
	}
	return basePrompt + "\n\nスタイル: " + mod
}
