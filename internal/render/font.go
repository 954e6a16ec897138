package render

import (
	"log/slog"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

const (
	regularFontSize = 15
	boldFontSize    = 18
	smallFontSize   = 12
	fontDPI         = 72
)

// FontSet はカード描画に使うフォントフェイス一式を保持する。
type FontSet struct {
	Regular font.Face
	Bold    font.Face
	Small   font.Face
}

// LoadFontSet は候補パスを順に試してフォントフェイス一式を構築する。
// TTF/TTC両対応。すべての候補が失敗した場合は組み込みのビットマップ
// フォントへフォールバックするため、フォント起因で描画が失敗することはない。
// 非ラテン文字の表示名に対応するため、候補リストはCJK対応フォントを
// 先頭に置くことを想定している。
func LoadFontSet(paths []string, logger *slog.Logger) *FontSet {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		collection, err := opentype.ParseCollection(data)
		if err != nil {
			logger.Warn("フォント読み込み: パースに失敗しました",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		parsed, err := collection.Font(0)
		if err != nil {
			logger.Warn("フォント読み込み: コレクションからの取り出しに失敗しました",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}

		set, err := newFaceSet(parsed)
		if err != nil {
			logger.Warn("フォント読み込み: フェイス生成に失敗しました",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}

		logger.Info("フォントを読み込みました", slog.String("path", path))
		return set
	}

	// 最終フォールバック: 組み込みフォント（常に利用可能）
	logger.Warn("利用可能なフォントファイルが見つからないため組み込みフォントを使用します")
	return &FontSet{
		Regular: basicfont.Face7x13,
		Bold:    basicfont.Face7x13,
		Small:   basicfont.Face7x13,
	}
}

// newFaceSet は1つのフォントから各サイズのフェイスを生成する。
func newFaceSet(f *opentype.Font) (*FontSet, error) {
	regular, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size: regularFontSize, DPI: fontDPI, Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	bold, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size: boldFontSize, DPI: fontDPI, Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	small, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size: smallFontSize, DPI: fontDPI, Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	return &FontSet{Regular: regular, Bold: bold, Small: small}, nil
}
