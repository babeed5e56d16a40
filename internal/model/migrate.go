package model

// All 返回需要 AutoMigrate 的全部模型。
func All() []interface{} {
	return []interface{}{
		&File{}, &DiskFile{}, &DiskFileReport{}, &FullTextHeader{}, &Preview{},
		&Header{},
		&Gmos{}, &Niri{}, &Gnirs{}, &Nifs{}, &F2{}, &Michelle{}, &Gsaoi{}, &Gpi{},
		&Footprint{}, &PhotStandard{}, &PhotStandardObs{},
		&IngestQueue{}, &ExportQueue{}, &PreviewQueue{}, &CalCacheQueue{}, &CalCache{},
		&User{}, &UserProgram{},
	}
}
