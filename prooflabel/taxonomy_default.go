package prooflabel

// DefaultCategories returns the built-in proof taxonomy. Specific categories
// come before generic ones ("REGISTRE DÉCHET" before "REGISTRE").
func DefaultCategories() []Category {
	return []Category{
		{Label: "Suivi & Bordereaux de Déchets (BSD)", Keywords: []string{
			"BSD", "BSDD", "BORDEREAU", "TRACKDECHETS", "REGISTRE DÉCHET", "BON D'ENLÈVEMENT",
			"BON ENLÈVEMENT", "CERTIFICAT D'ÉLIMINATION", "REGISTRE DE SORTIE",
		}},
		{Label: "Fiches de Données de Sécurité (FDS)", Keywords: []string{
			"FDS", "SDS", "FICHE DE DONNÉES DE SÉCURITÉ", "FICHES DE DONNÉES DE SÉCURITÉ",
		}},
		{Label: "Conformité Produits (REACH / RoHS)", Keywords: []string{
			"REACH", "ROHS", "SVHC", "DÉCLARATION DE CONFORMITÉ", "MARQUAGE CE", "SUBSTANCES DANGEREUSES",
		}},
		{Label: "Certificats Bois & Forêt (FSC / PEFC)", Keywords: []string{
			"FSC", "PEFC", "EUTR", "RDUE", "DILIGENCE RAISONNÉE", "BOIS",
		}},
		{Label: "Mesures de Bruit & Vibrations", Keywords: []string{
			"BRUIT", "SONOM", "ACOUSTI", "VIBRATION", "ÉMERGENCE SONORE",
		}},
		{Label: "Analyses des Rejets Aqueux", Keywords: []string{
			"REJET AQUEUX", "REJETS AQUEUX", "EFFLUENT", "ANALYSE EAU", "ANALYSES D'EAU",
			"AUTOSURVEILLANCE EAU", "CONVENTION DE REJET", "ASSAINISSEMENT", "FORAGE",
		}},
		{Label: "Bilan GES & Carbone", Keywords: []string{
			"BILAN GES", "BEGES", "CARBONE", "GAZ À EFFET DE SERRE", "MACF",
		}},
		{Label: "Mesures des Émissions Atmosphériques", Keywords: []string{
			"REJETS ATMOSPH", "ÉMISSIONS ATMOSPH", "COV", "CHEMINÉE", "QUALITÉ DE L'AIR", "POUSSIÈRE",
		}},
		{Label: "Audit & Performance Énergétique", Keywords: []string{
			"AUDIT ÉNERG", "BILAN ÉNERG", "ÉNERG", "DÉCRET TERTIAIRE", "OPERAT", "ISO 50001",
		}},
		{Label: "Contrôles Fluides Frigorigènes", Keywords: []string{
			"FRIGORIG", "CLIMATISATION", "CERFA 15497", "CONTRÔLE D'ÉTANCHÉITÉ", "FLUIDES",
		}},
		{Label: "Vérifications Périodiques des Équipements", Keywords: []string{
			"VÉRIFICATION PÉRIODIQUE", "VÉRIFICATIONS PÉRIODIQUES", "RAPPORT DE VÉRIFICATION",
			"APAVE", "BUREAU VERITAS", "SOCOTEC", "INSTALLATIONS ÉLECTRIQUES", "LEVAGE",
			"APPAREIL À PRESSION", "ÉQUIPEMENTS SOUS PRESSION",
		}},
		{Label: "Sécurité Incendie & Risques Industriels", Keywords: []string{
			"INCENDIE", "EXTINCTEUR", "SPRINKLER", "FOUDRE", "ATEX", "POI", "ÉTUDE DE DANGERS", "SISMIQUE",
		}},
		{Label: "Document Unique & Santé-Sécurité", Keywords: []string{
			"DUERP", "DOCUMENT UNIQUE", "RISQUES PROFESSIONNELS", "EPI", "VISITE MÉDICALE", "PÉNIBILITÉ",
		}},
		{Label: "Formations & Habilitations", Keywords: []string{
			"FORMATION", "HABILITATION", "CACES", "AUTORISATION DE CONDUITE",
		}},
		{Label: "Arrêtés & Autorisations ICPE / IOTA", Keywords: []string{
			"ICPE", "IOTA", "ARRÊTÉ PRÉFECTORAL", "RÉCÉPISSÉ", "PREUVE DE DÉPÔT", "ENREGISTREMENT",
			"DOSSIER DE DÉCLARATION", "AUTORISATION ENVIRONNEMENTALE",
		}},
		{Label: "Déclarations Annuelles & REP", Keywords: []string{
			"GEREP", "SYDEREP", "DÉCLARATION ANNUELLE", "REP", "ÉCO-ORGANISME", "CITEO", "ADEME",
		}},
		{Label: "Transport de Marchandises Dangereuses (ADR)", Keywords: []string{
			"ADR", "TMD", "CONSEILLER À LA SÉCURITÉ", "PROTOCOLE DE CHARGEMENT",
		}},
		{Label: "Registres & Consignes", Keywords: []string{
			"REGISTRE", "CONSIGNE", "PLAN DE PRÉVENTION", "PROTOCOLE DE SÉCURITÉ", "AFFICHAGE",
		}},
		{Label: "Contrats & Attestations Prestataires", Keywords: []string{
			"CONTRAT", "ATTESTATION", "CERTIFICAT", "FACTURE",
		}},
		{Label: "Procédures & Veille Réglementaire", Keywords: []string{
			"PROCÉDURE", "VEILLE", "POLITIQUE", "NOTE INTERNE", "COMPTE RENDU",
		}},
	}
}

// DefaultTaxonomy compiles DefaultCategories with accent-insensitive matching.
func DefaultTaxonomy() *Taxonomy {
	t, err := NewTaxonomy(DefaultCategories(), false)
	if err != nil {
		panic(err)
	}
	return t
}
