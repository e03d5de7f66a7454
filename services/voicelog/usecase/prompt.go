package usecase

import (
	"fmt"
	"strings"

	"github.com/xilidan/voicelog/services/voicelog/entity"
)

func correctionPrompt(transcript string) string {
	return fmt.Sprintf("以下のテキストの誤字脱字を修正してください：'%s'", transcript)
}

func replyPrompt(transcript string) string {
	return fmt.Sprintf(`以下は相談者から届いた音声メッセージの文字起こしです。
誤字脱字を修正した本文と、相談者に寄り添った短い返信を作成してください。
出力は次の形式のJSONオブジェクトのみとしてください。
{"user_text": "修正後の本文", "reply": "返信"}

文字起こし：'%s'`, transcript)
}

func facingSheetPrompt(transcription string) string {
	var b strings.Builder
	b.WriteString("以下の相談記録からフェイスシートを作成してください。\n")
	b.WriteString("次のキーを持つJSONオブジェクトを ```json で始まるコードブロックで出力してください。")
	b.WriteString("記録から分からない項目は空文字にしてください。\n\n")
	for _, f := range entity.FacingSheetFields {
		fmt.Fprintf(&b, "- %s: %s\n", f.Key, f.Label)
	}
	fmt.Fprintf(&b, "\n相談記録：'%s'", transcription)

	return b.String()
}
